// Package verify enforces structural rules of the repository that unit tests
// of a single package cannot see:
//   - every package under pkg/ is imported by non-test code
//   - every type implementing a backend contract asserts it at compile time
//   - every backend contract has its memory and PostgreSQL implementations
//
// Run: go test -run 'TestNoDeadPackages|TestContract' .
package mcp_element_config_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modulePath = "github.com/txn2/mcp-element-config"

// contract is an interface the service is wired against through options or
// platform configuration.
type contract struct {
	iface    string   // qualified name, e.g. configstore.Repository
	methods  []string // a type with all of these methods implements iface
	backends []string // directories that must each hold an asserted implementation
}

var contracts = []contract{
	{
		iface:    "configstore.Repository",
		methods:  []string{"Series", "UpdateSeries", "Revision", "LatestRevisions"},
		backends: []string{"pkg/configstore", "pkg/configstore/postgres"},
	},
	{
		iface:    "element.Resolver",
		methods:  []string{"Resolve"},
		backends: []string{"pkg/element", "pkg/element/postgres"},
	},
	{
		iface:    "audit.Logger",
		methods:  []string{"Log", "Query", "Close"},
		backends: []string{"pkg/audit", "pkg/audit/postgres"},
	},
	{
		iface:    "identity.Provider",
		methods:  []string{"Creator"},
		backends: []string{"pkg/identity"},
	},
}

// sourceFile is a parsed non-test Go file.
type sourceFile struct {
	dir  string // slash-separated, relative to the project root
	file *ast.File
}

// assertion is a `var _ Iface = ...` compliance declaration.
type assertion struct {
	dir      string
	iface    string
	typeName string
}

func parseSources(t *testing.T, root string, dirs ...string) []sourceFile {
	t.Helper()
	fset := token.NewFileSet()
	var out []sourceFile
	for _, d := range dirs {
		base := filepath.Join(root, d)
		err := filepath.WalkDir(base, func(path string, e fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if e.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			f, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, filepath.Dir(path))
			if err != nil {
				return err
			}
			out = append(out, sourceFile{dir: filepath.ToSlash(rel), file: f})
			return nil
		})
		require.NoError(t, err)
	}
	return out
}

// receiverName returns the type name of a method receiver, T or *T.
func receiverName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	expr := fn.Recv.List[0].Type
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	if id, ok := expr.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

// methodSets maps "dir.Type" to the names of its methods.
func methodSets(files []sourceFile) map[string][]string {
	sets := map[string][]string{}
	for _, sf := range files {
		for _, decl := range sf.file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok {
				continue
			}
			if recv := receiverName(fn); recv != "" {
				key := sf.dir + "." + recv
				sets[key] = append(sets[key], fn.Name.Name)
			}
		}
	}
	return sets
}

// assertedType extracts T from (*T)(nil) or T{}.
func assertedType(expr ast.Expr) string {
	switch v := expr.(type) {
	case *ast.CallExpr:
		if p, ok := v.Fun.(*ast.ParenExpr); ok {
			if star, ok := p.X.(*ast.StarExpr); ok {
				if id, ok := star.X.(*ast.Ident); ok {
					return id.Name
				}
			}
		}
	case *ast.CompositeLit:
		if id, ok := v.Type.(*ast.Ident); ok {
			return id.Name
		}
	}
	return ""
}

func qualifiedName(pkg string, expr ast.Expr) string {
	switch v := expr.(type) {
	case *ast.Ident:
		return pkg + "." + v.Name
	case *ast.SelectorExpr:
		if x, ok := v.X.(*ast.Ident); ok {
			return x.Name + "." + v.Sel.Name
		}
	}
	return ""
}

func complianceAssertions(files []sourceFile) []assertion {
	var out []assertion
	for _, sf := range files {
		for _, decl := range sf.file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.VAR {
				continue
			}
			for _, spec := range gen.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok || vs.Type == nil || len(vs.Names) != 1 || vs.Names[0].Name != "_" || len(vs.Values) != 1 {
					continue
				}
				typeName := assertedType(vs.Values[0])
				if typeName == "" {
					continue
				}
				out = append(out, assertion{
					dir:      sf.dir,
					iface:    qualifiedName(sf.file.Name.Name, vs.Type),
					typeName: typeName,
				})
			}
		}
	}
	return out
}

func projectRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.Abs(".")
	require.NoError(t, err)
	return root
}

// TestContractImplementationsAreAsserted requires every type under pkg/ whose
// method set covers a backend contract to carry a compile-time assertion for
// it, so a signature drift breaks the build instead of the wiring.
func TestContractImplementationsAreAsserted(t *testing.T) {
	files := parseSources(t, projectRoot(t), "pkg")
	sets := methodSets(files)
	asserted := map[string]bool{}
	for _, a := range complianceAssertions(files) {
		asserted[a.dir+"."+a.typeName+" "+a.iface] = true
	}

	for _, c := range contracts {
		var implementations int
		for key, methods := range sets {
			if !containsAll(methods, c.methods) {
				continue
			}
			implementations++
			assert.True(t, asserted[key+" "+c.iface],
				"%s implements %s but has no `var _ %s = ...` assertion", key, c.iface, c.iface)
		}
		assert.NotZero(t, implementations, "no implementation of %s found under pkg/", c.iface)
	}
}

// TestContractBackends requires each contract to be implemented in every
// backend directory it is configured from, and by no noop type.
func TestContractBackends(t *testing.T) {
	assertions := complianceAssertions(parseSources(t, projectRoot(t), "pkg"))
	require.NotEmpty(t, assertions)

	for _, c := range contracts {
		for _, dir := range c.backends {
			idx := slices.IndexFunc(assertions, func(a assertion) bool {
				return a.dir == dir && a.iface == c.iface
			})
			assert.GreaterOrEqual(t, idx, 0, "%s has no asserted implementation in %s", c.iface, dir)
		}
	}
	for _, a := range assertions {
		assert.NotContains(t, strings.ToLower(a.typeName), "noop",
			"%s.%s satisfies %s without doing anything", a.dir, a.typeName, a.iface)
	}
}

// TestNoDeadPackages requires every package under pkg/ to be imported by at
// least one non-test file in pkg/, internal/ or cmd/.
func TestNoDeadPackages(t *testing.T) {
	files := parseSources(t, projectRoot(t), "pkg", "internal", "cmd")

	packages := map[string]bool{}
	for _, sf := range files {
		if strings.HasPrefix(sf.dir, "pkg/") {
			packages[modulePath+"/"+sf.dir] = false
		}
	}
	require.NotEmpty(t, packages)

	for _, sf := range files {
		for _, imp := range sf.file.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			require.NoError(t, err)
			if _, ok := packages[path]; ok {
				packages[path] = true
			}
		}
	}

	for pkg, imported := range packages {
		assert.True(t, imported,
			"package %q is never imported by non-test code; wire it into the platform or delete it", pkg)
	}
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}
