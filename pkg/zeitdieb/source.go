package zeitdieb

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SourceProvider returns the lines of a source file.
type SourceProvider interface {
	Lines(file string) ([]string, error)
}

// FileSource reads files from disk, relative to Root when the path is not
// absolute. Results are cached.
type FileSource struct {
	Root string

	mu    sync.Mutex
	cache map[string][]string
}

// NewFileSource returns a FileSource rooted at root.
func NewFileSource(root string) *FileSource {
	return &FileSource{Root: root}
}

// Lines implements SourceProvider.
func (s *FileSource) Lines(file string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lines, ok := s.cache[file]; ok {
		return lines, nil
	}

	path := file
	if !filepath.IsAbs(path) && s.Root != "" {
		path = filepath.Join(s.Root, filepath.FromSlash(file))
	}

	// #nosec G304 - reading the profiled program's own sources
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lines, err := SplitLines(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	if s.cache == nil {
		s.cache = make(map[string][]string)
	}

	s.cache[file] = lines

	return lines, nil
}

// MapSource serves lines from memory, keyed by file name.
type MapSource map[string][]string

// Lines implements SourceProvider.
func (s MapSource) Lines(file string) ([]string, error) {
	lines, ok := s[file]
	if !ok {
		return nil, os.ErrNotExist
	}

	return lines, nil
}

// SplitLines splits file content into lines without line terminators.
// The scan buffer may grow to the whole input, so a single long line, as
// in generated files, does not stop the split.
func SplitLines(data []byte) ([]string, error) {
	var lines []string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), max(len(data)+1, bufio.MaxScanTokenSize))

	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("split lines: %w", err)
	}

	return lines, nil
}
