package trace

import "embed"

// Sources holds the files that make up the probe runtime copied into
// instrumented programs.
//
//go:embed key.go clock.go aggregator.go goroutine.go tracer.go frame.go
var Sources embed.FS

// SourceFiles lists the entries of Sources.
var SourceFiles = []string{
	"key.go",
	"clock.go",
	"aggregator.go",
	"goroutine.go",
	"tracer.go",
	"frame.go",
}
