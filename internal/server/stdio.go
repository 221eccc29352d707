package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxLineSize = 1024 * 1024

// ServeStdio reads one JSON call per line from r and writes one JSON response per line
// to w. It returns nil at end of input or when ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineSize)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	enc := json.NewEncoder(w)
	s.log.Info("serving tools on stdio", "tools", len(s.tools))

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := enc.Encode(s.handleLine(ctx, line)); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line string) Response {
	var call Call
	if err := json.Unmarshal([]byte(line), &call); err != nil {
		return Response{
			Error: fmt.Sprintf("malformed call: %v", err),
			Hint:  []string{`send {"tool": "<name>", "arguments": {...}} on a single line`},
		}
	}
	return s.Handle(ctx, call)
}
