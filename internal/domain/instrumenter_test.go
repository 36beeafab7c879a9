package domain

import (
	"context"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zeitdieb.dev/pkg/zeitdieb/internal/adapter"
	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
)

const storeSource = `package store

import "sync"

type DB struct {
	mu   sync.Mutex
	data map[string]int
}

func (db *DB) Get(key string) (int, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	v, ok := db.data[key]
	return v, ok
}

func Sum(values []int) int {
	total := 0
	for _, v := range values {
		switch {
		case v < 0:
			continue
		default:
			total += v
		}
	}
	apply := func(n int) int { return n * 2 }
	return apply(total)
}

func init() {
	_ = 1
}
`

const mainSource = `package main

import "fmt"

func main() {
	fmt.Println("hi")
}
`

func instrument(t *testing.T, src, relFile string) *InstrumentedFile {
	t.Helper()

	in := NewInstrumenter(adapter.NewLocalGoFileAdapter())

	out, err := in.Instrument(context.Background(), []byte(src), InstrumentOptions{
		ModulePath: "example.com/shop",
		RelFile:    relFile,
		FileIndex:  3,
	})
	require.NoError(t, err)

	return out
}

func TestInstrument_KeepsLineNumbers(t *testing.T) {
	out := instrument(t, storeSource, "store/store.go")
	require.Empty(t, out.Skipped)

	original := strings.Split(storeSource, "\n")
	rewritten := strings.Split(string(out.Source), "\n")
	require.Greater(t, len(rewritten), len(original))

	for i, line := range original {
		assert.Contains(t, rewritten[i], strings.TrimSpace(line), "line %d", i+1)
	}

	_, err := parser.ParseFile(token.NewFileSet(), "store.go", out.Source, 0)
	require.NoError(t, err)
}

func TestInstrument_Funcs(t *testing.T) {
	out := instrument(t, storeSource, "store/store.go")

	assert.Equal(t, []m.Func{
		{Name: "example.com/shop/store:DB.Get", Kind: m.KindMethod, File: "store/store.go", StartLine: 10, EndLine: 15},
		{Name: "example.com/shop/store:Sum", Kind: m.KindFunc, File: "store/store.go", StartLine: 17, EndLine: 29},
		{Name: "example.com/shop/store:Sum.func1", Kind: m.KindClosure, File: "store/store.go", StartLine: 27, EndLine: 27},
	}, out.Funcs)
}

func TestInstrument_LineEvents(t *testing.T) {
	out := instrument(t, storeSource, "store/store.go")
	lines := strings.Split(string(out.Source), "\n")

	assert.Equal(t, "package store;import zeitdiebprobe \"example.com/shop/internal/zeitdiebprobe\"", lines[0])
	assert.Equal(t, "func (db *DB) Get(key string) (int, bool) {__zdf := zeitdiebprobe.Enter(zeitdiebFn_3_0);defer __zdf.Exit();", lines[9])
	assert.Equal(t, "\t__zdf.Line(11);db.mu.Lock()", lines[10])
	assert.Equal(t, "\t\t\t__zdf.Line(22);continue", lines[21])
	assert.Equal(t, "\t__zdf.Line(27);apply := func(n int) int {__zdf := zeitdiebprobe.Enter(zeitdiebFn_3_2);defer __zdf.Exit(); __zdf.Line(27);return n * 2 }", lines[26])
	assert.Equal(t, "\t_ = 1", lines[31], "init is not instrumented")

	assert.Contains(t, string(out.Source), `zeitdiebFn_3_1 = &zeitdiebprobe.FuncInfo{Name: "example.com/shop/store:Sum", File: "store/store.go", StartLine: 17, EndLine: 29}`)
}

func TestInstrument_MainFlushes(t *testing.T) {
	out := instrument(t, mainSource, "main.go")
	lines := strings.Split(string(out.Source), "\n")

	require.Len(t, out.Funcs, 1)
	assert.Equal(t, "main:main", out.Funcs[0].Name)
	assert.Equal(t, "func main() {defer zeitdiebprobe.Flush();__zdf := zeitdiebprobe.Enter(zeitdiebFn_3_0);defer __zdf.Exit();", lines[4])
}

func TestInstrument_Skips(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		skipped string
	}{
		{
			name:    "cgo",
			src:     "package c\n\nimport \"C\"\n\nfunc F() {}\n",
			skipped: "cgo",
		},
		{
			name:    "no functions",
			src:     "package c\n\nconst X = 1\n",
			skipped: ErrNothingToTrace.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := instrument(t, tt.src, "c/c.go")
			assert.Equal(t, tt.skipped, out.Skipped)
			assert.Equal(t, tt.src, string(out.Source))
			assert.Empty(t, out.Funcs)
		})
	}
}

func TestInstrument_ParseError(t *testing.T) {
	in := NewInstrumenter(adapter.NewLocalGoFileAdapter())

	_, err := in.Instrument(context.Background(), []byte("package x\nfunc {"), InstrumentOptions{RelFile: "x.go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse x.go")
}

func TestSourceEdit_Apply(t *testing.T) {
	edits := &sourceEdit{}
	edits.Insert(3, "b")
	edits.Insert(0, ">")
	edits.Insert(3, "c")
	edits.Insert(7, "<")

	assert.Equal(t, ">foobc bar<", string(edits.Apply([]byte("foo bar"))))
}
