package parse

import (
	"reflect"
	"testing"

	"github.com/armchr/testgen/internal/model"
	"go.uber.org/zap"
)

const serviceSource = `package com.acme.billing;

import java.util.List;
import java.util.Map;
import static org.junit.jupiter.api.Assertions.*;
import com.acme.core.Customer;

@Service
@RequiredArgsConstructor
public class InvoiceService extends BaseService implements Billing, Auditable {
    private final CustomerRepository repository;
    public static final int LIMIT = 10;
    protected String name, alias;

    public InvoiceService(CustomerRepository repository) {
        this.repository = repository;
    }

    private InvoiceService() throws IllegalStateException {
        this(null);
    }

    @Transactional
    public List<Invoice> findInvoices(final Customer customer, Map<String, List<Long>> filters) throws NotFoundException, java.io.IOException {
        return repository.find(customer, "}");
    }

    static int count(String... names) {
        return names.length;
    }
}
`

func newTestParser() *Parser {
	return NewParser(zap.NewNop())
}

func TestParseSource_Class(t *testing.T) {
	facts := newTestParser().ParseSource("src/main/java/com/acme/billing/InvoiceService.java", []byte(serviceSource))
	if len(facts) != 1 {
		t.Fatalf("Expected 1 type, got %d", len(facts))
	}
	c := facts[0]

	if c.FQN != "com.acme.billing.InvoiceService" || c.Package != "com.acme.billing" {
		t.Errorf("Unexpected identity: fqn=%s package=%s", c.FQN, c.Package)
	}
	if c.Kind != model.KindClass || c.AccessModifier != "public" {
		t.Errorf("Unexpected kind/access: %s/%s", c.Kind, c.AccessModifier)
	}
	if c.Superclass != "BaseService" {
		t.Errorf("Superclass = %q, want BaseService", c.Superclass)
	}
	if !reflect.DeepEqual(c.Interfaces, []string{"Billing", "Auditable"}) {
		t.Errorf("Interfaces = %v", c.Interfaces)
	}
	if !reflect.DeepEqual(c.Annotations, []string{"@Service", "@RequiredArgsConstructor"}) {
		t.Errorf("Annotations = %v", c.Annotations)
	}
	wantImports := []string{
		"java.util.List",
		"java.util.Map",
		"static org.junit.jupiter.api.Assertions.*",
		"com.acme.core.Customer",
	}
	if !reflect.DeepEqual(c.Imports, wantImports) {
		t.Errorf("Imports = %v, want %v", c.Imports, wantImports)
	}

	if len(c.Constructors) != 2 {
		t.Fatalf("Expected 2 constructors, got %d", len(c.Constructors))
	}
	if c.Constructors[0].AccessModifier != "public" || !reflect.DeepEqual(c.Constructors[0].Parameters, []string{"CustomerRepository repository"}) {
		t.Errorf("Unexpected public constructor: %+v", c.Constructors[0])
	}
	if c.Constructors[1].AccessModifier != "private" || !reflect.DeepEqual(c.Constructors[1].Exceptions, []string{"IllegalStateException"}) {
		t.Errorf("Unexpected private constructor: %+v", c.Constructors[1])
	}
	if len(c.PublicConstructors()) != 1 {
		t.Errorf("Expected 1 public constructor")
	}

	m, ok := c.FindMethod("findInvoices")
	if !ok {
		t.Fatal("findInvoices not found")
	}
	if m.ReturnType != "List<Invoice>" {
		t.Errorf("ReturnType = %q", m.ReturnType)
	}
	wantParams := []string{"Customer customer", "Map<String, List<Long>> filters"}
	if !reflect.DeepEqual(m.Parameters, wantParams) {
		t.Errorf("Parameters = %v, want %v", m.Parameters, wantParams)
	}
	if !reflect.DeepEqual(m.Exceptions, []string{"NotFoundException", "java.io.IOException"}) {
		t.Errorf("Exceptions = %v", m.Exceptions)
	}
	if m.Body == "" || m.Body[0] != '{' {
		t.Errorf("Body should start with '{', got %q", m.Body)
	}

	count, ok := c.FindMethod("count")
	if !ok {
		t.Fatal("count not found")
	}
	if !count.IsStatic || count.AccessModifier != "package" {
		t.Errorf("Unexpected count modifiers: %+v", count)
	}
	if !reflect.DeepEqual(count.Parameters, []string{"String... names"}) {
		t.Errorf("count.Parameters = %v", count.Parameters)
	}

	if len(c.Fields) != 4 {
		t.Fatalf("Expected 4 fields, got %d: %+v", len(c.Fields), c.Fields)
	}
	repo := c.Fields[0]
	if repo.Name != "repository" || repo.Type != "CustomerRepository" || !repo.IsFinal || repo.AccessModifier != "private" {
		t.Errorf("Unexpected repository field: %+v", repo)
	}
	if c.Fields[2].Name != "name" || c.Fields[3].Name != "alias" || c.Fields[3].Type != "String" {
		t.Errorf("Multi-declarator fields not split: %+v", c.Fields[2:])
	}
}

func TestParseSource_OtherKinds(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		wantKind model.Kind
		check    func(t *testing.T, c *model.ClassFact)
	}{
		{
			name:     "record",
			source:   "package a;\npublic record Point(int x, @NonNull Long y) implements Shape {\n  public double norm() { return 0; }\n}\n",
			wantKind: model.KindRecord,
			check: func(t *testing.T, c *model.ClassFact) {
				if !reflect.DeepEqual(c.RecordComponents, []string{"int x", "Long y"}) {
					t.Errorf("RecordComponents = %v", c.RecordComponents)
				}
				if len(c.Constructors) != 1 || len(c.Constructors[0].Parameters) != 2 {
					t.Errorf("Expected canonical constructor, got %+v", c.Constructors)
				}
				if !reflect.DeepEqual(c.Interfaces, []string{"Shape"}) {
					t.Errorf("Interfaces = %v", c.Interfaces)
				}
			},
		},
		{
			name:     "interface",
			source:   "package a;\npublic interface Repo extends Base<String> {\n  int LIMIT = 3;\n  String find(long id);\n  default void touch() {}\n}\n",
			wantKind: model.KindInterface,
			check: func(t *testing.T, c *model.ClassFact) {
				find, ok := c.FindMethod("find")
				if !ok || !find.IsAbstract || find.AccessModifier != "public" {
					t.Errorf("Unexpected find: %+v", find)
				}
				touch, ok := c.FindMethod("touch")
				if !ok || touch.IsAbstract {
					t.Errorf("default method should not be abstract: %+v", touch)
				}
				if len(c.Fields) != 1 || !c.Fields[0].IsStatic || !c.Fields[0].IsFinal {
					t.Errorf("Unexpected constant fields: %+v", c.Fields)
				}
				if !reflect.DeepEqual(c.Interfaces, []string{"Base"}) {
					t.Errorf("Interfaces = %v", c.Interfaces)
				}
			},
		},
		{
			name:     "enum",
			source:   "package a;\npublic enum Color { RED, GREEN;\n  public String lower() { return name(); }\n}\n",
			wantKind: model.KindEnum,
			check: func(t *testing.T, c *model.ClassFact) {
				if _, ok := c.FindMethod("lower"); !ok {
					t.Error("enum method not extracted")
				}
			},
		},
		{
			name:     "abstract class",
			source:   "package a;\npublic abstract class Shape {\n  public abstract double area();\n}\n",
			wantKind: model.KindAbstractClass,
			check: func(t *testing.T, c *model.ClassFact) {
				if !c.Kind.IsMockableKind() {
					t.Error("abstract class should be mockable kind")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := newTestParser().ParseSource("X.java", []byte(tt.source))
			if len(facts) != 1 {
				t.Fatalf("Expected 1 type, got %d", len(facts))
			}
			if facts[0].Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", facts[0].Kind, tt.wantKind)
			}
			tt.check(t, facts[0])
		})
	}
}

func TestParseSource_DefaultPackageAndMultipleTypes(t *testing.T) {
	src := "class Helper {}\nenum Mode { A }\npublic record Main(int v) {}\n"
	facts := newTestParser().ParseSource("dir/Main.java", []byte(src))
	if len(facts) != 3 {
		t.Fatalf("Expected 3 types, got %d", len(facts))
	}
	if facts[0].FQN != "Helper" {
		t.Errorf("FQN in default package = %q, want Helper", facts[0].FQN)
	}
	if p := PrimaryType(facts); p.SimpleName != "Main" {
		t.Errorf("PrimaryType = %s, want Main", p.SimpleName)
	}
}

func TestPrimaryType_KindPriority(t *testing.T) {
	facts := []*model.ClassFact{
		{SimpleName: "E", Kind: model.KindEnum, FilePath: "Other.java"},
		{SimpleName: "I", Kind: model.KindInterface, FilePath: "Other.java"},
		{SimpleName: "C", Kind: model.KindClass, FilePath: "Other.java"},
		{SimpleName: "C2", Kind: model.KindClass, FilePath: "Other.java"},
	}
	if p := PrimaryType(facts); p.SimpleName != "C" {
		t.Errorf("PrimaryType = %s, want C", p.SimpleName)
	}
	if PrimaryType(nil) != nil {
		t.Error("PrimaryType(nil) should be nil")
	}
}

func TestParseFile_Missing(t *testing.T) {
	if _, err := newTestParser().ParseFile("/definitely/not/here.java"); err == nil {
		t.Error("Expected error for missing file")
	}
}
