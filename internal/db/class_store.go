package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/armchr/testgen/internal/model"
	"go.uber.org/zap"
)

// ClassStore persists parsed class facts: one row per class keyed by project and
// fully-qualified name, with methods, constructors and fields in child tables.
// Re-indexing a class replaces all of its rows.
type ClassStore struct {
	conn   *Connection
	db     *sql.DB
	logger *zap.Logger
}

// ClassStoreStats holds row counts for one project.
type ClassStoreStats struct {
	Classes      int64 `json:"classes"`
	Methods      int64 `json:"methods"`
	Constructors int64 `json:"constructors"`
	Fields       int64 `json:"fields"`
}

// NewClassStore creates a class store, creating its tables when missing.
func NewClassStore(ctx context.Context, conn *Connection, logger *zap.Logger) (*ClassStore, error) {
	store := &ClassStore{
		conn:   conn,
		db:     conn.GetDB(),
		logger: logger,
	}

	if err := store.EnsureTables(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure tables: %w", err)
	}
	return store, nil
}

// EnsureTables creates the class tables if they don't exist
func (s *ClassStore) EnsureTables(ctx context.Context) error {
	c := s.conn
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS classes (
			%s,
			project %s NOT NULL,
			fqn %s NOT NULL,
			simple_name %s NOT NULL,
			package_name %s NOT NULL,
			file_path %s,
			kind VARCHAR(32) NOT NULL,
			access_modifier VARCHAR(16),
			superclass %s,
			interfaces TEXT,
			annotations TEXT,
			imports TEXT,
			record_components TEXT,
			indexed_at BIGINT NOT NULL
		)%s`, c.autoIncrementPK(), c.keyText(191), c.keyText(400), c.keyText(191), c.keyText(255), c.keyText(500), c.keyText(400), c.tableSuffix()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS methods (
			%s,
			class_id BIGINT NOT NULL,
			name %s NOT NULL,
			access_modifier VARCHAR(16),
			return_type TEXT,
			parameters TEXT,
			exceptions TEXT,
			is_static BOOLEAN NOT NULL DEFAULT FALSE,
			is_abstract BOOLEAN NOT NULL DEFAULT FALSE,
			is_final BOOLEAN NOT NULL DEFAULT FALSE,
			body %s
		)%s`, c.autoIncrementPK(), c.keyText(255), c.longText(), c.tableSuffix()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS constructors (
			%s,
			class_id BIGINT NOT NULL,
			access_modifier VARCHAR(16),
			parameters TEXT,
			exceptions TEXT
		)%s`, c.autoIncrementPK(), c.tableSuffix()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS fields (
			%s,
			class_id BIGINT NOT NULL,
			name %s NOT NULL,
			access_modifier VARCHAR(16),
			type TEXT,
			is_static BOOLEAN NOT NULL DEFAULT FALSE,
			is_final BOOLEAN NOT NULL DEFAULT FALSE
		)%s`, c.autoIncrementPK(), c.keyText(255), c.tableSuffix()),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []struct{ name, table, columns string }{
		{"idx_classes_fqn", "classes", "project, fqn"},
		{"idx_classes_simple", "classes", "project, simple_name"},
		{"idx_classes_file", "classes", "project, file_path"},
		{"idx_methods_class", "methods", "class_id"},
		{"idx_constructors_class", "constructors", "class_id"},
		{"idx_fields_class", "fields", "class_id"},
	}
	for _, idx := range indexes {
		if err := c.createIndex(ctx, idx.name, idx.table, idx.columns); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	s.logger.Debug("Class store tables ready", zap.String("dialect", string(c.Dialect())))
	return nil
}

// ReplaceClass stores fact for project, deleting any previous rows for the same class
// in the same transaction.
func (s *ClassStore) ReplaceClass(ctx context.Context, project string, fact *model.ClassFact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteClasses(ctx, tx, "project = ? AND fqn = ?", project, fact.FQN); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO classes (project, fqn, simple_name, package_name, file_path, kind, access_modifier,
			superclass, interfaces, annotations, imports, record_components, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project, fact.FQN, fact.SimpleName, fact.Package, fact.FilePath, string(fact.Kind), fact.AccessModifier,
		fact.Superclass, encodeList(fact.Interfaces), encodeList(fact.Annotations), encodeList(fact.Imports),
		encodeList(fact.RecordComponents), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert class %s: %w", fact.FQN, err)
	}
	classID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read class id: %w", err)
	}

	for _, m := range fact.Methods {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO methods (class_id, name, access_modifier, return_type, parameters, exceptions,
				is_static, is_abstract, is_final, body)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			classID, m.Name, m.AccessModifier, m.ReturnType, encodeList(m.Parameters), encodeList(m.Exceptions),
			m.IsStatic, m.IsAbstract, m.IsFinal, m.Body,
		); err != nil {
			return fmt.Errorf("failed to insert method %s.%s: %w", fact.FQN, m.Name, err)
		}
	}
	for _, ctor := range fact.Constructors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO constructors (class_id, access_modifier, parameters, exceptions) VALUES (?, ?, ?, ?)`,
			classID, ctor.AccessModifier, encodeList(ctor.Parameters), encodeList(ctor.Exceptions),
		); err != nil {
			return fmt.Errorf("failed to insert constructor of %s: %w", fact.FQN, err)
		}
	}
	for _, f := range fact.Fields {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fields (class_id, name, access_modifier, type, is_static, is_final) VALUES (?, ?, ?, ?, ?, ?)`,
			classID, f.Name, f.AccessModifier, f.Type, f.IsStatic, f.IsFinal,
		); err != nil {
			return fmt.Errorf("failed to insert field %s.%s: %w", fact.FQN, f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit class %s: %w", fact.FQN, err)
	}

	s.logger.Debug("Stored class",
		zap.String("project", project),
		zap.String("fqn", fact.FQN),
		zap.Int("methods", len(fact.Methods)))
	return nil
}

// GetClass returns the class with the given fully-qualified name, or ErrNotFound.
func (s *ClassStore) GetClass(ctx context.Context, project, fqn string) (*model.ClassFact, error) {
	classes, err := s.queryClasses(ctx, "project = ? AND fqn = ?", project, fqn)
	if err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("class %s: %w", fqn, ErrNotFound)
	}
	return classes[0], nil
}

// FindBySimpleName returns every class declared with the simple name, in insertion order.
func (s *ClassStore) FindBySimpleName(ctx context.Context, project, simpleName string) ([]*model.ClassFact, error) {
	return s.queryClasses(ctx, "project = ? AND simple_name = ?", project, simpleName)
}

// ListClasses loads every class of a project.
func (s *ClassStore) ListClasses(ctx context.Context, project string) ([]*model.ClassFact, error) {
	return s.queryClasses(ctx, "project = ?", project)
}

// HasData reports whether any class has been stored for the project.
func (s *ClassStore) HasData(ctx context.Context, project string) (bool, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM classes WHERE project = ?", project).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count classes: %w", err)
	}
	return n > 0, nil
}

// DeleteByFile removes the classes declared in one file.
func (s *ClassStore) DeleteByFile(ctx context.Context, project, filePath string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteClasses(ctx, tx, "project = ? AND file_path = ?", project, filePath); err != nil {
		return err
	}
	return tx.Commit()
}

// Clear removes every class of a project and returns how many were deleted.
func (s *ClassStore) Clear(ctx context.Context, project string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var n int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM classes WHERE project = ?", project).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count classes: %w", err)
	}
	if err := deleteClasses(ctx, tx, "project = ?", project); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit clear: %w", err)
	}

	s.logger.Info("Cleared class store", zap.String("project", project), zap.Int64("classes", n))
	return n, nil
}

// Stats returns row counts for a project.
func (s *ClassStore) Stats(ctx context.Context, project string) (*ClassStoreStats, error) {
	stats := &ClassStoreStats{}
	queries := []struct {
		dest  *int64
		query string
	}{
		{&stats.Classes, "SELECT COUNT(*) FROM classes WHERE project = ?"},
		{&stats.Methods, "SELECT COUNT(*) FROM methods WHERE class_id IN (SELECT id FROM classes WHERE project = ?)"},
		{&stats.Constructors, "SELECT COUNT(*) FROM constructors WHERE class_id IN (SELECT id FROM classes WHERE project = ?)"},
		{&stats.Fields, "SELECT COUNT(*) FROM fields WHERE class_id IN (SELECT id FROM classes WHERE project = ?)"},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, project).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("failed to get class store stats: %w", err)
		}
	}
	return stats, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func deleteClasses(ctx context.Context, tx execer, where string, args ...any) error {
	for _, child := range []string{"methods", "constructors", "fields"} {
		query := fmt.Sprintf("DELETE FROM %s WHERE class_id IN (SELECT id FROM classes WHERE %s)", child, where)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete %s: %w", child, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM classes WHERE "+where, args...); err != nil {
		return fmt.Errorf("failed to delete classes: %w", err)
	}
	return nil
}

// queryClasses loads matching classes and their members. Each result set is drained
// before the next query runs so a single-connection pool never blocks.
func (s *ClassStore) queryClasses(ctx context.Context, where string, args ...any) ([]*model.ClassFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fqn, simple_name, package_name, file_path, kind, access_modifier, superclass,
			interfaces, annotations, imports, record_components
		FROM classes WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}

	var classes []*model.ClassFact
	byID := make(map[int64]*model.ClassFact)
	var ids []any
	for rows.Next() {
		var id int64
		var fact model.ClassFact
		var kind string
		var filePath, access, superclass sql.NullString
		var interfaces, annotations, imports, recordCmp sql.NullString
		if err := rows.Scan(&id, &fact.FQN, &fact.SimpleName, &fact.Package, &filePath, &kind, &access,
			&superclass, &interfaces, &annotations, &imports, &recordCmp); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		fact.Kind = model.Kind(kind)
		fact.FilePath = filePath.String
		fact.AccessModifier = access.String
		fact.Superclass = superclass.String
		fact.Interfaces = decodeList(interfaces)
		fact.Annotations = decodeList(annotations)
		fact.Imports = decodeList(imports)
		fact.RecordComponents = decodeList(recordCmp)

		classes = append(classes, &fact)
		byID[id] = &fact
		ids = append(ids, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate classes: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// members are fetched in chunks to stay under bind-variable limits
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		if err := s.loadMembers(ctx, byID, ids[start:end]); err != nil {
			return nil, err
		}
	}
	return classes, nil
}

func (s *ClassStore) loadMembers(ctx context.Context, byID map[int64]*model.ClassFact, ids []any) error {
	in := "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"

	rows, err := s.db.QueryContext(ctx, `
		SELECT class_id, name, access_modifier, return_type, parameters, exceptions, is_static, is_abstract, is_final, body
		FROM methods WHERE class_id IN `+in+` ORDER BY id`, ids...)
	if err != nil {
		return fmt.Errorf("failed to query methods: %w", err)
	}
	for rows.Next() {
		var classID int64
		var m model.MethodFact
		var access, ret, params, exc, body sql.NullString
		if err := rows.Scan(&classID, &m.Name, &access, &ret, &params, &exc, &m.IsStatic, &m.IsAbstract, &m.IsFinal, &body); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan method: %w", err)
		}
		m.AccessModifier, m.ReturnType, m.Body = access.String, ret.String, body.String
		m.Parameters, m.Exceptions = decodeList(params), decodeList(exc)
		if c := byID[classID]; c != nil {
			c.Methods = append(c.Methods, m)
		}
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("failed to iterate methods: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT class_id, access_modifier, parameters, exceptions
		FROM constructors WHERE class_id IN `+in+` ORDER BY id`, ids...)
	if err != nil {
		return fmt.Errorf("failed to query constructors: %w", err)
	}
	for rows.Next() {
		var classID int64
		var ctor model.ConstructorFact
		var access, params, exc sql.NullString
		if err := rows.Scan(&classID, &access, &params, &exc); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan constructor: %w", err)
		}
		ctor.AccessModifier = access.String
		ctor.Parameters, ctor.Exceptions = decodeList(params), decodeList(exc)
		if c := byID[classID]; c != nil {
			c.Constructors = append(c.Constructors, ctor)
		}
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("failed to iterate constructors: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT class_id, name, access_modifier, type, is_static, is_final
		FROM fields WHERE class_id IN `+in+` ORDER BY id`, ids...)
	if err != nil {
		return fmt.Errorf("failed to query fields: %w", err)
	}
	for rows.Next() {
		var classID int64
		var f model.FieldFact
		var access, fieldType sql.NullString
		if err := rows.Scan(&classID, &f.Name, &access, &fieldType, &f.IsStatic, &f.IsFinal); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan field: %w", err)
		}
		f.AccessModifier, f.Type = access.String, fieldType.String
		if c := byID[classID]; c != nil {
			c.Fields = append(c.Fields, f)
		}
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("failed to iterate fields: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeList(s sql.NullString) []string {
	if !s.Valid || s.String == "" || s.String == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil
	}
	return out
}

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
