package stdlib_test

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const modulePath = "github.com/comalice/rtfsm"

// imports returns the import paths of the non-test files in dir.
func imports(t *testing.T, dir string) map[string][]string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		t.Fatalf("glob %s: %v", dir, err)
	}
	out := make(map[string][]string)
	fset := token.NewFileSet()
	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		for _, spec := range f.Imports {
			path, _ := strconv.Unquote(spec.Path.Value)
			out[path] = append(out[path], filepath.Base(name))
		}
	}
	return out
}

func isStdlib(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return !strings.Contains(first, ".")
}

func TestStdlibOnlyPrimitives(t *testing.T) {
	for path, files := range imports(t, "primitives") {
		if !isStdlib(path) {
			t.Errorf("primitives imports non-stdlib %s in %v", path, files)
		}
	}
}

func TestCoreImportsOnlyLogging(t *testing.T) {
	for path, files := range imports(t, "core") {
		switch {
		case isStdlib(path), path == "go.uber.org/zap":
		case strings.HasPrefix(path, modulePath+"/internal/primitives"):
		default:
			t.Errorf("core imports %s in %v; only stdlib, zap and primitives are allowed", path, files)
		}
	}
}
