package parse

import (
	"regexp"
	"strings"

	"github.com/armchr/testgen/internal/model"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"go.uber.org/zap"
)

// JavaVisitor walks a tree-sitter Java syntax tree and collects the facts of
// every top-level type declared in one file.
type JavaVisitor struct {
	source   []byte
	filePath string
	logger   *zap.Logger

	pkg     string
	imports []string
	classes []*model.ClassFact
}

func NewJavaVisitor(logger *zap.Logger, filePath string, source []byte) *JavaVisitor {
	return &JavaVisitor{
		source:   source,
		filePath: filePath,
		logger:   logger,
	}
}

// Visit processes the program node and returns the collected top-level types.
func (jv *JavaVisitor) Visit(root *tree_sitter.Node) []*model.ClassFact {
	if root == nil {
		return nil
	}

	// package and imports come first so every type sees them
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		switch child.Kind() {
		case "package_declaration":
			jv.handlePackageDeclaration(child)
		case "import_declaration":
			jv.handleImportDeclaration(child)
		}
	}

	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		switch child.Kind() {
		case "class_declaration":
			jv.addClass(jv.handleClassDeclaration(child))
		case "interface_declaration":
			jv.addClass(jv.handleInterfaceDeclaration(child))
		case "record_declaration":
			jv.addClass(jv.handleRecordDeclaration(child))
		case "enum_declaration":
			jv.addClass(jv.handleEnumDeclaration(child))
		}
	}
	return jv.classes
}

func (jv *JavaVisitor) addClass(fact *model.ClassFact) {
	if fact == nil || fact.SimpleName == "" {
		return
	}
	fact.Package = jv.pkg
	fact.FQN = qualify(jv.pkg, fact.SimpleName)
	fact.FilePath = jv.filePath
	fact.Imports = append([]string(nil), jv.imports...)
	fact.Source = string(jv.source)
	jv.classes = append(jv.classes, fact)
}

func (jv *JavaVisitor) handlePackageDeclaration(tsNode *tree_sitter.Node) {
	nameNode := childByKind(tsNode, "scoped_identifier")
	if nameNode == nil {
		nameNode = childByKind(tsNode, "identifier")
	}
	if nameNode != nil {
		jv.pkg = jv.text(nameNode)
	}
}

func (jv *JavaVisitor) handleImportDeclaration(tsNode *tree_sitter.Node) {
	raw := strings.TrimSpace(jv.text(tsNode))
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "import"), ";")
	raw = strings.Join(strings.Fields(raw), " ")
	if raw != "" {
		jv.imports = append(jv.imports, raw)
	}
}

func (jv *JavaVisitor) handleClassDeclaration(tsNode *tree_sitter.Node) *model.ClassFact {
	fact := jv.newFact(tsNode, model.KindClass)
	if hasModifier(tsNode, "abstract") {
		fact.Kind = model.KindAbstractClass
	}

	if superclassNode := childByKind(tsNode, "superclass"); superclassNode != nil {
		fact.Superclass = jv.extractTypeName(superclassNode)
	}
	if interfacesNode := childByKind(tsNode, "super_interfaces"); interfacesNode != nil {
		fact.Interfaces = jv.extractTypeList(interfacesNode)
	}

	if body := childByKind(tsNode, "class_body"); body != nil {
		jv.handleBody(fact, body, false)
	}
	return fact
}

func (jv *JavaVisitor) handleInterfaceDeclaration(tsNode *tree_sitter.Node) *model.ClassFact {
	fact := jv.newFact(tsNode, model.KindInterface)
	if extendsNode := childByKind(tsNode, "extends_interfaces"); extendsNode != nil {
		fact.Interfaces = jv.extractTypeList(extendsNode)
	}
	if body := childByKind(tsNode, "interface_body"); body != nil {
		jv.handleBody(fact, body, true)
	}
	return fact
}

func (jv *JavaVisitor) handleRecordDeclaration(tsNode *tree_sitter.Node) *model.ClassFact {
	fact := jv.newFact(tsNode, model.KindRecord)

	// record components double as the canonical constructor
	if paramList := tsNode.ChildByFieldName("parameters"); paramList != nil {
		fact.RecordComponents = jv.extractParameters(paramList)
		fact.Constructors = append(fact.Constructors, model.ConstructorFact{
			AccessModifier: fact.AccessModifier,
			Parameters:     fact.RecordComponents,
		})
	}
	if interfacesNode := childByKind(tsNode, "super_interfaces"); interfacesNode != nil {
		fact.Interfaces = jv.extractTypeList(interfacesNode)
	}
	if body := childByKind(tsNode, "class_body"); body != nil {
		jv.handleBody(fact, body, false)
	}
	return fact
}

func (jv *JavaVisitor) handleEnumDeclaration(tsNode *tree_sitter.Node) *model.ClassFact {
	fact := jv.newFact(tsNode, model.KindEnum)
	if interfacesNode := childByKind(tsNode, "super_interfaces"); interfacesNode != nil {
		fact.Interfaces = jv.extractTypeList(interfacesNode)
	}
	if body := childByKind(tsNode, "enum_body"); body != nil {
		if decls := childByKind(body, "enum_body_declarations"); decls != nil {
			jv.handleBody(fact, decls, false)
		}
	}
	return fact
}

func (jv *JavaVisitor) newFact(tsNode *tree_sitter.Node, kind model.Kind) *model.ClassFact {
	fact := &model.ClassFact{
		Kind:           kind,
		AccessModifier: accessModifier(tsNode),
		Annotations:    jv.extractAnnotations(tsNode),
	}
	if nameNode := tsNode.ChildByFieldName("name"); nameNode != nil {
		fact.SimpleName = jv.text(nameNode)
	}
	return fact
}

// handleBody collects the direct members of a type body. Nested types are not descended into.
func (jv *JavaVisitor) handleBody(fact *model.ClassFact, body *tree_sitter.Node, inInterface bool) {
	for i := uint(0); i < body.NamedChildCount(); i++ {
		member := body.NamedChild(i)
		switch member.Kind() {
		case "method_declaration":
			method := jv.handleMethodDeclaration(member)
			if inInterface {
				if method.AccessModifier == "package" {
					method.AccessModifier = "public"
				}
				if member.ChildByFieldName("body") == nil && !method.IsStatic {
					method.IsAbstract = true
				}
			}
			fact.Methods = append(fact.Methods, method)
		case "constructor_declaration", "compact_constructor_declaration":
			fact.Constructors = append(fact.Constructors, jv.handleConstructorDeclaration(member, fact))
		case "field_declaration", "constant_declaration":
			fact.Fields = append(fact.Fields, jv.handleFieldDeclaration(member, inInterface)...)
		}
	}
}

func (jv *JavaVisitor) handleMethodDeclaration(tsNode *tree_sitter.Node) model.MethodFact {
	method := model.MethodFact{
		AccessModifier: accessModifier(tsNode),
		IsStatic:       hasModifier(tsNode, "static"),
		IsAbstract:     hasModifier(tsNode, "abstract"),
		IsFinal:        hasModifier(tsNode, "final"),
	}
	if nameNode := tsNode.ChildByFieldName("name"); nameNode != nil {
		method.Name = jv.text(nameNode)
	}
	if typeNode := tsNode.ChildByFieldName("type"); typeNode != nil {
		method.ReturnType = collapseSpace(jv.text(typeNode))
		if dims := tsNode.ChildByFieldName("dimensions"); dims != nil {
			method.ReturnType += jv.text(dims)
		}
	}
	if paramsNode := tsNode.ChildByFieldName("parameters"); paramsNode != nil {
		method.Parameters = jv.extractParameters(paramsNode)
	}
	method.Exceptions = jv.extractThrows(tsNode)
	if bodyNode := tsNode.ChildByFieldName("body"); bodyNode != nil {
		method.Body = jv.text(bodyNode)
	}
	return method
}

func (jv *JavaVisitor) handleConstructorDeclaration(tsNode *tree_sitter.Node, owner *model.ClassFact) model.ConstructorFact {
	ctor := model.ConstructorFact{AccessModifier: accessModifier(tsNode)}
	if tsNode.Kind() == "compact_constructor_declaration" {
		ctor.Parameters = owner.RecordComponents
		return ctor
	}
	if paramsNode := tsNode.ChildByFieldName("parameters"); paramsNode != nil {
		ctor.Parameters = jv.extractParameters(paramsNode)
	}
	ctor.Exceptions = jv.extractThrows(tsNode)
	return ctor
}

func (jv *JavaVisitor) handleFieldDeclaration(tsNode *tree_sitter.Node, inInterface bool) []model.FieldFact {
	typeName := ""
	if typeNode := tsNode.ChildByFieldName("type"); typeNode != nil {
		typeName = collapseSpace(jv.text(typeNode))
	}
	access := accessModifier(tsNode)
	isStatic := hasModifier(tsNode, "static")
	isFinal := hasModifier(tsNode, "final")
	if inInterface {
		access, isStatic, isFinal = "public", true, true
	}

	var fields []model.FieldFact
	for i := uint(0); i < tsNode.NamedChildCount(); i++ {
		declarator := tsNode.NamedChild(i)
		if declarator.Kind() != "variable_declarator" {
			continue
		}
		nameNode := declarator.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		fields = append(fields, model.FieldFact{
			Name:           jv.text(nameNode),
			AccessModifier: access,
			Type:           typeName,
			IsStatic:       isStatic,
			IsFinal:        isFinal,
		})
	}
	return fields
}

var annotationTextRegex = regexp.MustCompile(`@[\w.]+(\s*\([^)]*\))?\s*`)

// extractParameters renders each formal parameter as a "Type name" string with
// annotations and the final modifier removed.
func (jv *JavaVisitor) extractParameters(paramsNode *tree_sitter.Node) []string {
	var params []string
	for i := uint(0); i < paramsNode.NamedChildCount(); i++ {
		param := paramsNode.NamedChild(i)
		switch param.Kind() {
		case "formal_parameter", "spread_parameter":
			raw := annotationTextRegex.ReplaceAllString(jv.text(param), "")
			raw = collapseSpace(raw)
			raw = strings.TrimPrefix(raw, "final ")
			if raw != "" {
				params = append(params, raw)
			}
		}
	}
	return params
}

func (jv *JavaVisitor) extractThrows(tsNode *tree_sitter.Node) []string {
	throwsNode := childByKind(tsNode, "throws")
	if throwsNode == nil {
		return nil
	}
	var out []string
	for i := uint(0); i < throwsNode.NamedChildCount(); i++ {
		if name := jv.extractTypeName(throwsNode.NamedChild(i)); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// extractAnnotations returns the annotations on a declaration's modifiers as source text,
// e.g. "@Service" or "@RequestMapping(\"/api\")".
func (jv *JavaVisitor) extractAnnotations(tsNode *tree_sitter.Node) []string {
	modifiers := childByKind(tsNode, "modifiers")
	if modifiers == nil {
		return nil
	}

	var annotations []string
	for i := uint(0); i < modifiers.ChildCount(); i++ {
		child := modifiers.Child(i)
		kind := child.Kind()
		if kind == "marker_annotation" || kind == "annotation" {
			annotations = append(annotations, collapseSpace(jv.text(child)))
		}
	}
	return annotations
}

// extractTypeName extracts a type name from a tree-sitter node.
// This handles superclass nodes, type_identifier, generic_type, and scoped_type_identifier.
func (jv *JavaVisitor) extractTypeName(tsNode *tree_sitter.Node) string {
	if tsNode == nil {
		return ""
	}

	switch tsNode.Kind() {
	case "superclass":
		for i := uint(0); i < tsNode.NamedChildCount(); i++ {
			if name := jv.extractTypeName(tsNode.NamedChild(i)); name != "" {
				return name
			}
		}
	case "type_identifier", "identifier", "scoped_identifier", "scoped_type_identifier":
		return jv.text(tsNode)
	case "generic_type":
		return jv.extractTypeNameFromGeneric(tsNode)
	}
	return ""
}

// extractTypeNameFromGeneric extracts the base type name from a generic_type node.
// e.g., List<Owner> -> "List", Map<String, Object> -> "Map"
func (jv *JavaVisitor) extractTypeNameFromGeneric(tsNode *tree_sitter.Node) string {
	if typeIdNode := childByKind(tsNode, "type_identifier"); typeIdNode != nil {
		return jv.text(typeIdNode)
	}
	if scopedNode := childByKind(tsNode, "scoped_type_identifier"); scopedNode != nil {
		return jv.text(scopedNode)
	}
	return ""
}

// extractTypeList extracts a list of type names from a super_interfaces or extends_interfaces node.
// Java: class Foo implements Bar, Baz -> ["Bar", "Baz"]
func (jv *JavaVisitor) extractTypeList(tsNode *tree_sitter.Node) []string {
	if typeListNode := childByKind(tsNode, "type_list"); typeListNode != nil {
		tsNode = typeListNode
	}

	var types []string
	for i := uint(0); i < tsNode.NamedChildCount(); i++ {
		if name := jv.extractTypeName(tsNode.NamedChild(i)); name != "" {
			types = append(types, name)
		}
	}
	return types
}

func (jv *JavaVisitor) text(node *tree_sitter.Node) string {
	return node.Utf8Text(jv.source)
}

func childByKind(node *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == kind {
			return child
		}
	}
	return nil
}

func hasModifier(node *tree_sitter.Node, modifier string) bool {
	modifiers := childByKind(node, "modifiers")
	if modifiers == nil {
		return false
	}
	return childByKind(modifiers, modifier) != nil
}

func accessModifier(node *tree_sitter.Node) string {
	for _, m := range []string{"public", "protected", "private"} {
		if hasModifier(node, m) {
			return m
		}
	}
	return "package"
}

func qualify(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
