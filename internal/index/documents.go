package index

import (
	"fmt"
	"strings"

	"github.com/armchr/testgen/internal/model"
)

// fullDefinitionLimit is the source length up to which a class document carries the
// whole file.
const fullDefinitionLimit = 500

// Document is one text unit to embed.
type Document struct {
	Content  string
	Metadata map[string]string
}

// ClassDocument renders the class-level document. Short files and records carry the
// full source; other classes get a header plus member signatures.
func ClassDocument(fact *model.ClassFact, source string) Document {
	meta := baseMetadata(fact)
	meta[model.MetaType] = model.ItemClass

	var sb strings.Builder
	if source != "" && (len(source) <= fullDefinitionLimit || fact.Kind == model.KindRecord) {
		fmt.Fprintf(&sb, "Class: %s\nPackage: %s\n\nFull Definition:\n%s", fact.SimpleName, fact.Package, source)
		return Document{Content: sb.String(), Metadata: meta}
	}

	fmt.Fprintf(&sb, "%s %s in package %s", kindKeyword(fact.Kind), fact.SimpleName, fact.Package)
	if len(fact.Imports) > 0 {
		imports := fact.Imports
		if len(imports) > 5 {
			imports = imports[:5]
		}
		fmt.Fprintf(&sb, " with imports: %s", strings.Join(imports, ", "))
	}
	sb.WriteString("\n\n")
	for _, a := range fact.Annotations {
		sb.WriteString(a)
		sb.WriteString("\n")
	}
	sb.WriteString(declarationHeader(fact))
	sb.WriteString(" {\n")
	for _, f := range fact.Fields {
		sb.WriteString("    ")
		if f.AccessModifier != "package" {
			sb.WriteString(f.AccessModifier + " ")
		}
		if f.IsStatic {
			sb.WriteString("static ")
		}
		if f.IsFinal {
			sb.WriteString("final ")
		}
		fmt.Fprintf(&sb, "%s %s;\n", f.Type, f.Name)
	}
	for _, c := range fact.Constructors {
		fmt.Fprintf(&sb, "    %s;\n", c.Signature(fact.SimpleName))
	}
	for _, m := range fact.Methods {
		fmt.Fprintf(&sb, "    %s;\n", m.Signature())
	}
	sb.WriteString("}")
	return Document{Content: sb.String(), Metadata: meta}
}

// MethodDocuments renders one document per method: signature followed by its body.
func MethodDocuments(fact *model.ClassFact) []Document {
	docs := make([]Document, 0, len(fact.Methods))
	for _, m := range fact.Methods {
		meta := baseMetadata(fact)
		meta[model.MetaType] = model.ItemMethod
		meta[model.MetaMethodName] = m.Name
		meta[model.MetaSignature] = m.Signature()
		body := m.Body
		if body == "" {
			body = ";"
		}
		docs = append(docs, Document{
			Content:  fmt.Sprintf("Method: %s\n\nImplementation:\n%s", m.Signature(), body),
			Metadata: meta,
		})
	}
	return docs
}

func baseMetadata(fact *model.ClassFact) map[string]string {
	return map[string]string{
		model.MetaClassName: fact.SimpleName,
		model.MetaPackage:   fact.Package,
		model.MetaFilePath:  fact.FilePath,
		model.MetaLanguage:  "java",
		model.MetaKind:      string(fact.Kind),
	}
}

func kindKeyword(k model.Kind) string {
	switch k {
	case model.KindInterface:
		return "interface"
	case model.KindEnum:
		return "enum"
	case model.KindRecord:
		return "record"
	}
	return "class"
}

func declarationHeader(fact *model.ClassFact) string {
	var parts []string
	if fact.AccessModifier != "" && fact.AccessModifier != "package" {
		parts = append(parts, fact.AccessModifier)
	}
	if fact.Kind == model.KindAbstractClass {
		parts = append(parts, "abstract")
	}
	parts = append(parts, kindKeyword(fact.Kind), fact.SimpleName)
	header := strings.Join(parts, " ")
	if fact.Kind == model.KindRecord && len(fact.RecordComponents) > 0 {
		header += "(" + strings.Join(fact.RecordComponents, ", ") + ")"
	}
	if fact.Superclass != "" {
		header += " extends " + fact.Superclass
	}
	if len(fact.Interfaces) > 0 {
		keyword := " implements "
		if fact.Kind == model.KindInterface {
			keyword = " extends "
		}
		header += keyword + strings.Join(fact.Interfaces, ", ")
	}
	return header
}
