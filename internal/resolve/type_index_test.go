package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/parse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeJava(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func fact(pkg, name string) *model.ClassFact {
	fqn := name
	if pkg != "" {
		fqn = pkg + "." + name
	}
	return &model.ClassFact{Package: pkg, SimpleName: name, FQN: fqn, Kind: model.KindClass}
}

func TestResolve_ExactPackageWins(t *testing.T) {
	ti := NewTypeIndexFromFacts([]*model.ClassFact{fact("a.c", "Helper"), fact("a.b", "Helper")}, zap.NewNop())

	res := ti.Resolve("Helper", "a.b.target")
	require.True(t, res.Found())
	assert.Equal(t, "a.b.Helper", res.Class.FQN)
	assert.True(t, res.Ambiguous)
	assert.Empty(t, res.Warning)

	res = ti.Resolve("Helper", "a.c")
	assert.Equal(t, "a.c.Helper", res.Class.FQN)
}

func TestResolve_FallbackWarns(t *testing.T) {
	ti := NewTypeIndexFromFacts([]*model.ClassFact{fact("x.one", "Util"), fact("y.two", "Util")}, zap.NewNop())

	for _, pkg := range []string{"", "z.other"} {
		res := ti.Resolve("Util", pkg)
		require.True(t, res.Found())
		assert.Equal(t, "x.one.Util", res.Class.FQN, "first discovered candidate")
		assert.True(t, res.Ambiguous)
		assert.NotEmpty(t, res.Warning)
		assert.Equal(t, 2, res.Candidates)
	}
}

func TestResolve_TiedPrefixFallsBack(t *testing.T) {
	ti := NewTypeIndexFromFacts([]*model.ClassFact{fact("com.a.x", "Dup"), fact("com.a.y", "Dup")}, zap.NewNop())
	res := ti.Resolve("Dup", "com.a.z")
	assert.Equal(t, "com.a.x.Dup", res.Class.FQN)
	assert.NotEmpty(t, res.Warning)
}

func TestResolve_Deterministic(t *testing.T) {
	ti := NewTypeIndexFromFacts([]*model.ClassFact{fact("p.q", "A"), fact("p.r", "A"), fact("s", "A")}, zap.NewNop())
	first := ti.Resolve("A", "p")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ti.Resolve("A", "p"))
	}
}

func TestResolve_UnknownAndCleaned(t *testing.T) {
	ti := NewTypeIndexFromFacts([]*model.ClassFact{fact("m", "Order")}, zap.NewNop())
	assert.False(t, ti.Resolve("Missing", "m").Found())

	res := ti.Resolve("List<Order>[]", "")
	assert.False(t, res.Found(), "generic wrappers resolve by outer name")

	res = ti.Resolve("m.Order", "")
	require.True(t, res.Found())
	assert.False(t, res.Ambiguous)
}

func TestImportStatements(t *testing.T) {
	ti := NewTypeIndexFromFacts([]*model.ClassFact{
		fact("com.acme.model", "Order"),
		fact("com.acme.service", "OrderService"),
		fact("java.lang", "Shadow"),
		fact("", "Loose"),
	}, zap.NewNop())

	assert.Equal(t, "import com.acme.model.Order;", ti.ImportStatement("Order", "com.acme.service"))
	assert.Empty(t, ti.ImportStatement("OrderService", "com.acme.service"), "same package")
	assert.Empty(t, ti.ImportStatement("Shadow", "com.acme"), "java.lang")
	assert.Empty(t, ti.ImportStatement("Loose", "com.acme"), "default package")
	assert.Empty(t, ti.ImportStatement("Nope", "com.acme"))

	imports := ti.ImportsForTypes([]string{"OrderService", "Order", "Order", "Nope"}, "com.acme.web")
	assert.Equal(t, []string{"import com.acme.model.Order;", "import com.acme.service.OrderService;"}, imports)
}

func TestStatisticsAndPackages(t *testing.T) {
	ti := NewTypeIndexFromFacts([]*model.ClassFact{
		fact("a", "X"), fact("a", "Y"), fact("b", "X"), fact("a", "X"),
	}, zap.NewNop())

	stats := ti.Statistics()
	assert.Equal(t, Stats{TotalTypes: 3, UniqueNames: 2, AmbiguousNames: 1, Packages: 2}, stats)
	assert.Equal(t, []string{"X", "Y"}, ti.TypesInPackage("a"))
	assert.Len(t, ti.Candidates("X"), 2)
	assert.Len(t, ti.Candidates("Y"), 1)
	_, ok := ti.Lookup("b.X")
	assert.True(t, ok)
}

func TestBuild_SkipsTestsAndUsesLexicalOrder(t *testing.T) {
	root := t.TempDir()
	writeJava(t, root, "src/main/java/a/c/Helper.java", "package a.c;\npublic class Helper {}\n")
	writeJava(t, root, "src/main/java/a/b/Helper.java", "package a.b;\npublic class Helper {}\n")
	writeJava(t, root, "src/main/java/a/b/Point.java", "package a.b;\npublic record Point(int x) {}\n")
	writeJava(t, root, "src/test/java/a/b/HelperTest.java", "package a.b;\npublic class HelperTest {}\n")
	writeJava(t, root, "src/main/java/a/b/LegacyTest.java", "package a.b;\npublic class LegacyTest {}\n")

	ti, err := Build(root, parse.NewParser(zap.NewNop()), 2, zap.NewNop())
	require.NoError(t, err)

	assert.Empty(t, ti.Candidates("HelperTest"))
	assert.Empty(t, ti.Candidates("LegacyTest"))
	assert.Equal(t, 3, ti.Statistics().TotalTypes)

	candidates := ti.Candidates("Helper")
	require.Len(t, candidates, 2)
	assert.Equal(t, "a.b.Helper", candidates[0].FQN, "a/b sorts before a/c")

	res := ti.Resolve("Helper", "a.b.target")
	assert.Equal(t, "a.b.Helper", res.Class.FQN)

	point := ti.Resolve("Point", "")
	require.True(t, point.Found())
	assert.Equal(t, model.KindRecord, point.Class.Kind)
}

func TestBuild_MissingRoot(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "missing"), parse.NewParser(zap.NewNop()), 1, zap.NewNop())
	assert.Error(t, err)
}

func TestNewTypeIndexFromFacts_PrimaryTypePerFile(t *testing.T) {
	inFile := func(path, pkg, name string, kind model.Kind) *model.ClassFact {
		f := fact(pkg, name)
		f.FilePath, f.Kind = path, kind
		return f
	}
	facts := []*model.ClassFact{
		// stored in insertion order, not file order
		inFile("src/b/Shapes.java", "b", "Shape", model.KindInterface),
		inFile("src/b/Shapes.java", "b", "Circle", model.KindRecord),
		inFile("src/b/Shapes.java", "b", "Kind", model.KindEnum),
		inFile("src/a/Point.java", "a", "PointHelper", model.KindClass),
		inFile("src/a/Point.java", "a", "Point", model.KindRecord),
		inFile("src/c/Circle.java", "c", "Circle", model.KindClass),
	}

	ti := NewTypeIndexFromFacts(facts, zap.NewNop())

	assert.Equal(t, 3, ti.Statistics().TotalTypes)
	assert.Empty(t, ti.Candidates("PointHelper"), "secondary types are not registered")
	assert.Empty(t, ti.Candidates("Shape"))
	assert.Empty(t, ti.Candidates("Kind"))

	res := ti.Resolve("Point", "z")
	require.True(t, res.Found())
	assert.Equal(t, "a.Point", res.Class.FQN, "the type named after the file wins")

	candidates := ti.Candidates("Circle")
	require.Len(t, candidates, 2)
	assert.Equal(t, "b.Circle", candidates[0].FQN, "records outrank other kinds and files follow lexical order")
	assert.Equal(t, "c.Circle", candidates[1].FQN)
}
