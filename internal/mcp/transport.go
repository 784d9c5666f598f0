package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxMessageSize bounds one line of input. Note content arrives inline in
// tool arguments, so the default scanner limit is too small.
const maxMessageSize = 4 << 20

// handlerFunc answers one request; nil means no reply.
type handlerFunc func(ctx context.Context, req *Request) *Response

// serveLines reads newline-delimited JSON-RPC messages from r and writes one
// reply line per answered request to w. Requests are handled in order. It
// returns nil when r is exhausted.
func serveLines(ctx context.Context, r io.Reader, w io.Writer, handle handlerFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req Request
		var resp *Response
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			resp = replyError(nil, ErrCodeParseError, "Parse error", err.Error())
		} else {
			resp = handle(ctx, &req)
			if req.ID == nil {
				resp = nil
			}
		}
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return nil
}
