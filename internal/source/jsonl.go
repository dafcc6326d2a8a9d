package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/yungbote/legisgraph/internal/domain"
	"github.com/yungbote/legisgraph/internal/ingest"
)

// MaxLineBytes bounds one JSON line. Page records carry full HTML.
const MaxLineBytes = 64 << 20

// JSONLines reads one JSON record per line. Blank lines are skipped.
type JSONLines struct {
	name string
	sc   *bufio.Scanner
	line int
}

func NewJSONLines(r io.Reader, name string) *JSONLines {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	if name == "" {
		name = "input"
	}
	return &JSONLines{name: name, sc: sc}
}

func (s *JSONLines) Next(ctx context.Context) (domain.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.sc.Scan() {
			if err := s.sc.Err(); err != nil {
				return nil, fmt.Errorf("source: read %s after line %d: %w", s.name, s.line, err)
			}
			return nil, io.EOF
		}
		s.line++
		raw := bytes.TrimSpace(s.sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		rec, err := domain.Decode(raw)
		if err != nil {
			return nil, &ingest.DecodeError{Position: fmt.Sprintf("%s:%d", s.name, s.line), Err: err}
		}
		return rec, nil
	}
}

// Done is a no-op: a file has nothing to acknowledge.
func (s *JSONLines) Done(context.Context, error) error { return nil }

// Line returns the number of the line read last.
func (s *JSONLines) Line() int { return s.line }
