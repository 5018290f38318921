package parse

import (
	"reflect"
	"strings"
	"testing"

	"github.com/armchr/testgen/internal/model"
)

func TestParseWithRegex(t *testing.T) {
	src := `package com.acme;

import java.util.List;
import static java.lang.Math.max;

/* class Ignored */
@Component
public class Greeter {
    private final Clock clock;

    public Greeter(Clock clock) {
        this.clock = clock;
    }

    public String greet(String name, List<String> extra) throws IllegalStateException {
        if (name == null) {
            throw new IllegalStateException("{");
        }
        return "hi " + name;
    }
}
`
	facts := ParseWithRegex("Greeter.java", src)
	if len(facts) != 1 {
		t.Fatalf("Expected 1 type, got %d", len(facts))
	}
	c := facts[0]
	if c.FQN != "com.acme.Greeter" || c.Kind != model.KindClass {
		t.Errorf("Unexpected identity %s %s", c.FQN, c.Kind)
	}
	if !reflect.DeepEqual(c.Imports, []string{"java.util.List", "static java.lang.Math.max"}) {
		t.Errorf("Imports = %v", c.Imports)
	}
	if !reflect.DeepEqual(c.Annotations, []string{"@Component"}) {
		t.Errorf("Annotations = %v", c.Annotations)
	}
	if len(c.Constructors) != 1 || !reflect.DeepEqual(c.Constructors[0].Parameters, []string{"Clock clock"}) {
		t.Errorf("Constructors = %+v", c.Constructors)
	}
	if len(c.Methods) != 1 {
		t.Fatalf("Expected 1 method, got %+v", c.Methods)
	}
	m := c.Methods[0]
	if m.Name != "greet" || m.ReturnType != "String" || len(m.Parameters) != 2 {
		t.Errorf("Unexpected method %+v", m)
	}
	if !strings.HasSuffix(m.Body, "}") || !strings.Contains(m.Body, "return \"hi \" + name;") {
		t.Errorf("Body not balanced: %q", m.Body)
	}
	if len(c.Fields) != 1 || c.Fields[0].Name != "clock" || !c.Fields[0].IsFinal {
		t.Errorf("Fields = %+v", c.Fields)
	}
}

func TestParseWithRegex_KindPriority(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
		kind model.Kind
	}{
		{"record before class", "package p;\nclass Helper {}\npublic record Point(int x, int y) {}\n", "Point", model.KindRecord},
		{"class before interface", "package p;\ninterface Api {}\nclass Impl implements Api {}\n", "Impl", model.KindClass},
		{"enum only", "package p;\npublic enum Mode { A, B }\n", "Mode", model.KindEnum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := ParseWithRegex("x.java", tt.src)
			if len(facts) != 1 || facts[0].SimpleName != tt.want || facts[0].Kind != tt.kind {
				t.Errorf("got %+v, want %s (%s)", facts, tt.want, tt.kind)
			}
		})
	}
	if ParseWithRegex("x.java", "// nothing here\n") != nil {
		t.Error("Expected nil for source without declarations")
	}
}

func TestExtractMethodSource(t *testing.T) {
	src := `public class A {
    public int add(int a, int b) {
        String s = "}";
        return a + b;
    }

    abstract void hook();
}`
	got, ok := ExtractMethodSource(src, "add")
	if !ok {
		t.Fatal("add not found")
	}
	want := "public int add(int a, int b) {\n        String s = \"}\";\n        return a + b;\n    }"
	if got != want {
		t.Errorf("ExtractMethodSource = %q, want %q", got, want)
	}

	hook, ok := ExtractMethodSource(src, "hook")
	if !ok || hook != "abstract void hook();" {
		t.Errorf("hook = %q, %v", hook, ok)
	}

	if _, ok := ExtractMethodSource(src, "missing"); ok {
		t.Error("Expected missing method not to be found")
	}
}

func TestExtractMethodSource_SkipsCallSites(t *testing.T) {
	src := `public class Checker {
    public int process(int x) {
        if (x < 0) {
            throw fail(x);
        }
        return validate(x);
    }

    int validate(int x) {
        return x * 2;
    }

    private IllegalStateException fail(int x) {
        return new IllegalStateException("bad " + x);
    }
}`
	tests := []struct {
		name string
		want string
	}{
		{"validate", "int validate(int x) {\n        return x * 2;\n    }"},
		{"fail", "private IllegalStateException fail(int x) {\n        return new IllegalStateException(\"bad \" + x);\n    }"},
	}
	for _, tt := range tests {
		got, ok := ExtractMethodSource(src, tt.name)
		if !ok {
			t.Errorf("%s not found", tt.name)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractMethodSource(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
