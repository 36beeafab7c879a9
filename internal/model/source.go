// Package model defines the data structures shared by the zeitdieb CLI layers.
package model

// Path represents a file system path.
type Path string

// FuncKind tells how a traceable callable is declared.
type FuncKind string

const (
	// KindFunc is a package-level function.
	KindFunc FuncKind = "func"
	// KindMethod is a method with a receiver.
	KindMethod FuncKind = "method"
	// KindClosure is a function literal inside another callable.
	KindClosure FuncKind = "closure"
)

// Func describes one traceable callable found in the sources.
type Func struct {
	// Name is the target identity, "module-path:Callable".
	Name string
	Kind FuncKind
	// File is relative to the module root, slash separated.
	File      string
	StartLine int
	EndLine   int
}

// File represents a source file of the profiled module.
type File struct {
	Path Path
	// Rel is the module-relative, slash separated path.
	Rel string
}

// Package groups the files of one Go package.
type Package struct {
	// ID is the package part of target identities: "main" for commands,
	// the import path otherwise.
	ID    string
	Name  string
	Dir   Path
	Files []File
	Funcs []Func
	// HasTestMain is set when one of the package's test files declares TestMain.
	HasTestMain bool
}
