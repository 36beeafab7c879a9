package adapter

import (
	"context"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
)

func examplePath(t *testing.T, name string) string {
	t.Helper()

	return filepath.Join("..", "..", "examples", name)
}

func readFileBytes(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return data
}

func TestLocalGoFileAdapter_Parse(t *testing.T) {
	adapter := NewLocalGoFileAdapter()
	fset := token.NewFileSet()

	exampleFile := filepath.Join(examplePath(t, "basic"), "main.go")
	content := readFileBytes(t, exampleFile)
	file, err := adapter.Parse(context.Background(), fset, exampleFile, content)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if file.Name.Name != "main" {
		t.Fatalf("Parse() package = %s, want main", file.Name.Name)
	}
}

func TestLocalGoFileAdapter_Parse_InvalidSource(t *testing.T) {
	adapter := NewLocalGoFileAdapter()
	fset := token.NewFileSet()

	if _, err := adapter.Parse(context.Background(), fset, "broken.go", []byte("package foo\n func")); err == nil {
		t.Fatalf("Parse() expected error for invalid source")
	}
}

func TestLocalGoFileAdapter_Parse_ContextCancellation(t *testing.T) {
	adapter := NewLocalGoFileAdapter()
	fset := token.NewFileSet()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := adapter.Parse(ctx, fset, "example.go", []byte("package main\n func main() {}")); err == nil {
		t.Fatalf("Parse() expected error due to context cancellation")
	}
}

func TestLocalGoFileAdapter_PackageID(t *testing.T) {
	adapter := NewLocalGoFileAdapter()

	assert.Equal(t, "main", adapter.PackageID("example.com/basic", "cmd/tool", "main"))
	assert.Equal(t, "example.com/basic", adapter.PackageID("example.com/basic", ".", "basic"))
	assert.Equal(t, "example.com/basic/store", adapter.PackageID("example.com/basic", "store", "store"))
}

func TestLocalGoFileAdapter_ExtractFuncs_Example(t *testing.T) {
	adapter := NewLocalGoFileAdapter()
	fset := token.NewFileSet()

	path := filepath.Join(examplePath(t, "basic"), "main.go")
	file, err := adapter.Parse(context.Background(), fset, path, readFileBytes(t, path))
	require.NoError(t, err)

	funcs := adapter.ExtractFuncs(fset, file, "main", "main.go")

	assert.Equal(t, []m.Func{
		{Name: "main:main", Kind: m.KindFunc, File: "main.go", StartLine: 10, EndLine: 13},
		{Name: "main:work", Kind: m.KindFunc, File: "main.go", StartLine: 15, EndLine: 27},
		{Name: "main:work.func1", Kind: m.KindClosure, File: "main.go", StartLine: 22, EndLine: 24},
	}, funcs)
}

func TestLocalGoFileAdapter_ExtractFuncs_Naming(t *testing.T) {
	src := `package list

func init() {}

type List[T any] struct{ items []T }

func (l *List[T]) Each(fn func(T)) {
	for _, v := range l.items {
		func() {
			defer func() {}()
			fn(v)
		}()
	}
}

func (List[T]) Kind() string { return "list" }

func _() {}

func Declared()

var global = func() {}
`
	adapter := NewLocalGoFileAdapter()
	fset := token.NewFileSet()

	file, err := adapter.Parse(context.Background(), fset, "list.go", []byte(src))
	require.NoError(t, err)

	var names []string
	for _, fn := range adapter.ExtractFuncs(fset, file, "example.com/list", "list.go") {
		names = append(names, fn.Name)
	}

	assert.Equal(t, []string{
		"example.com/list:List.Each",
		"example.com/list:List.Each.func1",
		"example.com/list:List.Each.func1.1",
		"example.com/list:List.Kind",
	}, names)
}

func TestLocalGoFileAdapter_HasTestMainAndImportsC(t *testing.T) {
	adapter := NewLocalGoFileAdapter()
	fset := token.NewFileSet()

	path := filepath.Join(examplePath(t, "testmain"), "lib_test.go")
	file, err := adapter.Parse(context.Background(), fset, path, readFileBytes(t, path))
	require.NoError(t, err)
	assert.True(t, adapter.HasTestMain(file))
	assert.False(t, adapter.ImportsC(file))

	cgo, err := adapter.Parse(context.Background(), fset, "cgo.go", []byte("package x\n\nimport \"C\"\n\nfunc F() {}\n"))
	require.NoError(t, err)
	assert.True(t, adapter.ImportsC(cgo))
	assert.False(t, adapter.HasTestMain(cgo))
}
