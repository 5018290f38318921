package model

import "strings"

// Kind is the declared kind of a Java type.
type Kind string

const (
	KindClass         Kind = "class"
	KindAbstractClass Kind = "abstract_class"
	KindInterface     Kind = "interface"
	KindEnum          Kind = "enum"
	KindRecord        Kind = "record"
)

// IsMockableKind reports whether instances of the kind cannot be created directly.
func (k Kind) IsMockableKind() bool {
	return k == KindInterface || k == KindAbstractClass
}

// ClassFact holds the structural facts of one top-level Java type.
type ClassFact struct {
	Package        string            `json:"package"`
	SimpleName     string            `json:"simple_name"`
	FQN            string            `json:"fqn"`
	FilePath       string            `json:"file_path"`
	Kind           Kind              `json:"kind"`
	AccessModifier string            `json:"access_modifier"`
	Superclass     string            `json:"superclass,omitempty"`
	Interfaces     []string          `json:"interfaces,omitempty"`
	Annotations    []string          `json:"annotations,omitempty"`
	Imports        []string          `json:"imports,omitempty"`
	Constructors   []ConstructorFact `json:"constructors,omitempty"`
	Methods        []MethodFact      `json:"methods,omitempty"`
	Fields         []FieldFact       `json:"fields,omitempty"`
	// RecordComponents holds "Type name" strings for records.
	RecordComponents []string `json:"record_components,omitempty"`
	// Source is the full file text; it is not persisted in the class store.
	Source string `json:"-"`
}

// MethodFact describes a method declaration. Parameters are raw "Type name" strings.
type MethodFact struct {
	Name           string   `json:"name"`
	AccessModifier string   `json:"access_modifier"`
	ReturnType     string   `json:"return_type"`
	Parameters     []string `json:"parameters,omitempty"`
	Exceptions     []string `json:"exceptions,omitempty"`
	IsStatic       bool     `json:"is_static"`
	IsAbstract     bool     `json:"is_abstract"`
	IsFinal        bool     `json:"is_final"`
	Body           string   `json:"body,omitempty"`
}

// ConstructorFact describes a constructor declaration.
type ConstructorFact struct {
	AccessModifier string   `json:"access_modifier"`
	Parameters     []string `json:"parameters,omitempty"`
	Exceptions     []string `json:"exceptions,omitempty"`
}

// FieldFact describes a field declaration.
type FieldFact struct {
	Name           string `json:"name"`
	AccessModifier string `json:"access_modifier"`
	Type           string `json:"type"`
	IsStatic       bool   `json:"is_static"`
	IsFinal        bool   `json:"is_final"`
}

// Signature renders the method as "access [modifiers] ReturnType name(params) [throws ...]".
func (m MethodFact) Signature() string {
	var sb strings.Builder
	if m.AccessModifier != "" && m.AccessModifier != "package" {
		sb.WriteString(m.AccessModifier)
		sb.WriteString(" ")
	}
	if m.IsStatic {
		sb.WriteString("static ")
	}
	if m.IsFinal {
		sb.WriteString("final ")
	}
	if m.IsAbstract {
		sb.WriteString("abstract ")
	}
	sb.WriteString(m.ReturnType)
	sb.WriteString(" ")
	sb.WriteString(m.Name)
	sb.WriteString("(")
	sb.WriteString(strings.Join(m.Parameters, ", "))
	sb.WriteString(")")
	if len(m.Exceptions) > 0 {
		sb.WriteString(" throws ")
		sb.WriteString(strings.Join(m.Exceptions, ", "))
	}
	return sb.String()
}

// Signature renders the constructor for the given simple class name.
func (c ConstructorFact) Signature(simpleName string) string {
	s := simpleName + "(" + strings.Join(c.Parameters, ", ") + ")"
	if c.AccessModifier != "" && c.AccessModifier != "package" {
		s = c.AccessModifier + " " + s
	}
	if len(c.Exceptions) > 0 {
		s += " throws " + strings.Join(c.Exceptions, ", ")
	}
	return s
}

// FindMethod returns the first method with the given name.
func (c *ClassFact) FindMethod(name string) (*MethodFact, bool) {
	for i := range c.Methods {
		if c.Methods[i].Name == name {
			return &c.Methods[i], true
		}
	}
	return nil, false
}

// PublicConstructors returns the constructors declared public.
func (c *ClassFact) PublicConstructors() []ConstructorFact {
	var out []ConstructorFact
	for _, ctor := range c.Constructors {
		if ctor.AccessModifier == "public" {
			out = append(out, ctor)
		}
	}
	return out
}

// HasAnnotation reports whether the class carries the annotation (with or without '@').
func (c *ClassFact) HasAnnotation(name string) bool {
	name = strings.TrimPrefix(name, "@")
	for _, a := range c.Annotations {
		a = strings.TrimPrefix(a, "@")
		if i := strings.Index(a, "("); i >= 0 {
			a = a[:i]
		}
		if a == name || strings.HasSuffix(a, "."+name) {
			return true
		}
	}
	return false
}
