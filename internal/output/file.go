package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSink persists the run to a file. NDJSON lines are written as they
// happen, so a partially finished run still leaves a readable file.
type FileSink struct {
	*structured
	path string
	file *os.File
}

// InferFormat maps an output path's extension onto json or ndjson.
func InferFormat(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return "json", nil
	case ".ndjson", ".jsonl":
		return "ndjson", nil
	default:
		return "", fmt.Errorf("cannot infer output format from file extension %q", ext)
	}
}

func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}
	if format == "" {
		inferred, err := InferFormat(path)
		if err != nil {
			return nil, err
		}
		format = inferred
	}
	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	s, err := newStructured(f, format)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &FileSink{structured: s, path: path, file: f}, nil
}

func (s *FileSink) Write(v any) error { return s.write(v) }

func (s *FileSink) Close() error {
	err := s.close()
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
