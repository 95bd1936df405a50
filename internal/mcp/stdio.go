package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
)

// maxMessageBytes bounds a single JSON-RPC message. Requests may carry inline
// base64 image payloads, so the limit is generous.
const maxMessageBytes = 16 << 20

// ServeStdio reads newline-delimited JSON-RPC messages from in and writes
// responses to out. It returns when in is exhausted or ctx is canceled.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		resp := s.Handle(ctx, line)
		if resp == nil {
			continue
		}
		if _, err := out.Write(append(resp, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return nil
}
