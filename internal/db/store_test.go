package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/armchr/testgen/internal/config"
	"github.com/armchr/testgen/internal/model"
	"go.uber.org/zap"
)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	conn, err := OpenSQLite(context.Background(), ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sampleClass(fqn string, methods ...string) *model.ClassFact {
	fact := &model.ClassFact{
		Package:        "com.acme",
		SimpleName:     fqn[len("com.acme."):],
		FQN:            fqn,
		FilePath:       "src/main/java/com/acme/" + fqn[len("com.acme."):] + ".java",
		Kind:           model.KindClass,
		AccessModifier: "public",
		Interfaces:     []string{"Runnable"},
		Annotations:    []string{"@Service"},
		Imports:        []string{"java.util.List"},
		Constructors: []model.ConstructorFact{
			{AccessModifier: "public", Parameters: []string{"Repo repo"}},
		},
		Fields: []model.FieldFact{
			{Name: "repo", AccessModifier: "private", Type: "Repo", IsFinal: true},
		},
	}
	for _, m := range methods {
		fact.Methods = append(fact.Methods, model.MethodFact{
			Name:           m,
			AccessModifier: "public",
			ReturnType:     "int",
			Parameters:     []string{"String a", "Map<String, Long> b"},
			Exceptions:     []string{"IOException"},
			IsStatic:       m == "util",
			Body:           "{ return 1; }",
		})
	}
	return fact
}

func TestClassStore_ReplaceAndGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewClassStore(ctx, newTestConnection(t), zap.NewNop())
	if err != nil {
		t.Fatalf("NewClassStore() error = %v", err)
	}

	has, err := store.HasData(ctx, "demo")
	if err != nil || has {
		t.Fatalf("HasData() = %v, %v; want false", has, err)
	}

	if err := store.ReplaceClass(ctx, "demo", sampleClass("com.acme.Foo", "run", "util")); err != nil {
		t.Fatalf("ReplaceClass() error = %v", err)
	}

	got, err := store.GetClass(ctx, "demo", "com.acme.Foo")
	if err != nil {
		t.Fatalf("GetClass() error = %v", err)
	}
	if got.SimpleName != "Foo" || got.Kind != model.KindClass || len(got.Methods) != 2 {
		t.Fatalf("unexpected class: %+v", got)
	}
	if got.Methods[0].Name != "run" || got.Methods[1].Name != "util" || !got.Methods[1].IsStatic {
		t.Errorf("methods out of order or flags lost: %+v", got.Methods)
	}
	if len(got.Methods[0].Parameters) != 2 || got.Methods[0].Parameters[1] != "Map<String, Long> b" {
		t.Errorf("parameters not round-tripped: %v", got.Methods[0].Parameters)
	}
	if len(got.Constructors) != 1 || len(got.Fields) != 1 || !got.Fields[0].IsFinal {
		t.Errorf("members not round-tripped: ctors=%+v fields=%+v", got.Constructors, got.Fields)
	}
	if !got.HasAnnotation("Service") {
		t.Errorf("annotations not round-tripped: %v", got.Annotations)
	}

	// replacing drops members that no longer exist
	if err := store.ReplaceClass(ctx, "demo", sampleClass("com.acme.Foo", "run")); err != nil {
		t.Fatalf("ReplaceClass() error = %v", err)
	}
	got, err = store.GetClass(ctx, "demo", "com.acme.Foo")
	if err != nil {
		t.Fatalf("GetClass() error = %v", err)
	}
	if len(got.Methods) != 1 {
		t.Errorf("expected 1 method after replace, got %d", len(got.Methods))
	}

	stats, err := store.Stats(ctx, "demo")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if *stats != (ClassStoreStats{Classes: 1, Methods: 1, Constructors: 1, Fields: 1}) {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestClassStore_ProjectsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, err := NewClassStore(ctx, newTestConnection(t), zap.NewNop())
	if err != nil {
		t.Fatalf("NewClassStore() error = %v", err)
	}

	for _, fqn := range []string{"com.acme.A", "com.acme.B"} {
		if err := store.ReplaceClass(ctx, "one", sampleClass(fqn, "m")); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.ReplaceClass(ctx, "two", sampleClass("com.acme.A", "m")); err != nil {
		t.Fatal(err)
	}

	list, err := store.ListClasses(ctx, "one")
	if err != nil || len(list) != 2 {
		t.Fatalf("ListClasses(one) = %d, %v", len(list), err)
	}
	found, err := store.FindBySimpleName(ctx, "two", "A")
	if err != nil || len(found) != 1 {
		t.Fatalf("FindBySimpleName(two, A) = %d, %v", len(found), err)
	}

	n, err := store.Clear(ctx, "one")
	if err != nil || n != 2 {
		t.Fatalf("Clear(one) = %d, %v", n, err)
	}
	if _, err := store.GetClass(ctx, "one", "com.acme.A"); !IsNotFound(err) {
		t.Errorf("expected not found after clear, got %v", err)
	}
	if has, _ := store.HasData(ctx, "two"); !has {
		t.Error("clearing one project must not touch another")
	}

	if err := store.DeleteByFile(ctx, "two", "src/main/java/com/acme/A.java"); err != nil {
		t.Fatalf("DeleteByFile() error = %v", err)
	}
	if has, _ := store.HasData(ctx, "two"); has {
		t.Error("expected project two to be empty after DeleteByFile")
	}
}

func TestSessionStore_SaveGetList(t *testing.T) {
	ctx := context.Background()
	store, err := NewSessionStore(ctx, newTestConnection(t), zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}

	start := time.Now().Add(-time.Minute)
	for i, id := range []string{"s1", "s2"} {
		session := &model.GenerationSession{
			ID:         id,
			ClassFQN:   "com.acme.Foo",
			MethodName: "run",
			ModeUsed:   model.ModeRAG,
			Success:    i == 1,
			Error:      map[bool]string{true: "", false: "compile fix attempts exhausted"}[i == 1],
			StartedAt:  start.Add(time.Duration(i) * time.Second),
			FinishedAt: start.Add(time.Duration(i)*time.Second + 1500*time.Millisecond),
		}
		session.AppendAttempt(model.ErrorCompile, "cannot find symbol", nil)
		if err := store.SaveSession(ctx, "demo", session); err != nil {
			t.Fatalf("SaveSession(%s) error = %v", id, err)
		}
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Success || len(got.Attempts) != 1 || got.Attempts[0].ErrorClass != model.ErrorCompile {
		t.Errorf("unexpected session: %+v", got)
	}

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := store.ListSessions(ctx, "demo", 10)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "s2" || !list[0].Success || list[1].Error == "" {
		t.Errorf("unexpected listing: %+v", list)
	}
	if list[0].DurationMS != 1500 {
		t.Errorf("DurationMS = %d, want 1500", list[0].DurationMS)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.ClassStoreConfig{Driver: "oracle"}, config.MySQLConfig{}, zap.NewNop())
	if err == nil {
		t.Error("expected error for unknown driver")
	}
}
