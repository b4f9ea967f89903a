package ort

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestNoCgoImportInOrtPackage enforces the project's no-CGO contract for ort/.
func TestNoCgoImportInOrtPackage(t *testing.T) {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to resolve caller file")
	}
	ortDir := filepath.Dir(thisFile)

	entries, err := os.ReadDir(ortDir)
	if err != nil {
		t.Fatalf("failed to read ort package directory: %v", err)
	}

	fset := token.NewFileSet()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") {
			continue
		}

		file, err := parser.ParseFile(fset, filepath.Join(ortDir, entry.Name()), nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("failed to parse %s: %v", entry.Name(), err)
		}

		for _, imp := range file.Imports {
			if imp.Path != nil && imp.Path.Value == "\"C\"" {
				t.Fatalf("CGO import detected in %s: import \"C\" is forbidden", entry.Name())
			}
		}
	}
}
