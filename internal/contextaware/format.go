package contextaware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/armchr/testgen/internal/model"
)

// Items renders the context as prompt items, all at distance 0: core context, class
// info, imports and, when there are any, dependencies.
func (c *TestContext) Items() []model.ContextItem {
	items := []model.ContextItem{
		model.NewContextItem(c.formatCore(), map[string]string{
			model.MetaType:       model.ItemCoreContext,
			model.MetaClassName:  c.Core.ClassFQN,
			model.MetaMethodName: c.Core.MethodName,
		}, 0),
		model.NewContextItem(c.formatClassInfo(), map[string]string{
			model.MetaType:      model.ItemClassInfo,
			model.MetaClassName: c.Core.ClassFQN,
		}, 0),
		model.NewContextItem(strings.Join(c.Imports, "\n"), map[string]string{
			model.MetaType: model.ItemImports,
			"import_count": strconv.Itoa(len(c.Imports)),
		}, 0),
	}
	if len(c.Dependencies) > 0 {
		items = append(items, model.NewContextItem(c.formatDependencies(), map[string]string{
			model.MetaType:     model.ItemDependencyContext,
			"dependency_count": strconv.Itoa(len(c.Dependencies)),
		}, 0))
	}
	return items
}

func (c *TestContext) formatCore() string {
	var lines []string
	lines = append(lines, "Method: "+c.Core.MethodSignature, "", "Implementation:")
	for _, a := range c.Core.Annotations {
		if a = strings.TrimSpace(a); a != "" {
			lines = append(lines, a)
		}
	}
	for _, line := range strings.Split(c.Core.MethodSource, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	if len(c.Core.OtherConstructors) > 0 || len(c.Core.OtherMethods) > 0 {
		lines = append(lines, "", "Other methods in this class:")
		if len(c.Core.OtherConstructors) > 0 {
			lines = append(lines, "Constructors:")
			for _, s := range c.Core.OtherConstructors {
				lines = append(lines, "  "+s)
			}
			lines = append(lines, "")
		}
		if len(c.Core.OtherMethods) > 0 {
			lines = append(lines, "Other methods:")
			for _, s := range c.Core.OtherMethods {
				lines = append(lines, "  "+s)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func (c *TestContext) formatClassInfo() string {
	fqn := c.Core.ClassFQN
	name, pkg := fqn, ""
	if i := strings.LastIndex(fqn, "."); i >= 0 {
		name, pkg = fqn[i+1:], fqn[:i]
	}

	var lines []string
	switch {
	case c.Core.UtilityClass:
		lines = append(lines,
			fmt.Sprintf("class %s in package %s with annotations: @UtilityClass", name, pkg),
			"",
			"SPECIAL INSTRUCTIONS FOR @UtilityClass:",
			"- This class cannot be instantiated",
			"- All methods are static methods",
			"- DO NOT use @InjectMocks or @Mock annotations",
			"- Call methods directly: ClassName.methodName(params)",
			"- DO NOT create instances with 'new ClassName()'",
		)
	case len(c.Core.Annotations) > 0:
		lines = append(lines, fmt.Sprintf("class %s in package %s with annotations: %s", name, pkg, strings.Join(c.Core.Annotations, ", ")))
	default:
		lines = append(lines, fmt.Sprintf("class %s in package %s", name, pkg))
	}

	if len(c.Core.FinalFields) > 0 {
		lines = append(lines, "", "Class fields:")
		for _, f := range c.Core.FinalFields {
			lines = append(lines, "  "+f)
		}
	}
	if len(c.Core.Constructors) > 0 {
		lines = append(lines, "", "Public constructors:")
		for _, s := range c.Core.Constructors {
			lines = append(lines, "  "+s)
		}
	}
	if len(c.Core.Fields) > 0 {
		lines = append(lines, "", "Visible fields:")
		for _, s := range c.Core.Fields {
			lines = append(lines, "  "+s)
		}
	}
	return strings.Join(lines, "\n")
}

func (c *TestContext) formatDependencies() string {
	var lines []string
	for i, dep := range c.Dependencies {
		lines = append(lines, fmt.Sprintf("%d. %s (%s):", i+1, dep.SimpleName(), dep.Kind))
		if len(dep.Constructors) > 0 {
			lines = append(lines, "   Constructors:")
			for _, s := range dep.Constructors {
				lines = append(lines, "   - "+s)
			}
		}
		if len(dep.FactoryMethods) > 0 {
			lines = append(lines, "   Factory methods:")
			for _, s := range dep.FactoryMethods {
				lines = append(lines, "   - "+s)
			}
		}
		if dep.Guide != "" {
			lines = append(lines, "   Usage: "+dep.Guide)
		}
		if i < len(c.Dependencies)-1 {
			lines = append(lines, "")
		}
	}
	return strings.Join(lines, "\n")
}
