package output

import (
	"fmt"
	"io"
)

// EmitSink writes an additional structured stream, normally to stdout next to
// (or instead of) the console.
type EmitSink struct {
	*structured
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, fmt.Errorf("emit sink writer must not be nil")
	}
	s, err := newStructured(w, format)
	if err != nil {
		return nil, fmt.Errorf("emit sink: %w", err)
	}
	return &EmitSink{structured: s}, nil
}

func (s *EmitSink) Write(v any) error { return s.write(v) }

func (s *EmitSink) Close() error { return s.close() }
