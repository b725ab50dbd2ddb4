package agent

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// doneMarker terminates a server-sent event stream explicitly.
const doneMarker = "[DONE]"

// ResponseStream is a finite, non-restartable sequence of response fragments
// delivered as server-sent events. Recv blocks until the next fragment
// arrives and returns io.EOF once the stream is exhausted.
type ResponseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
}

func newResponseStream(body io.ReadCloser) *ResponseStream {
	return &ResponseStream{
		body:   body,
		reader: bufio.NewReader(body),
	}
}

// Recv returns the next response fragment. It skips SSE "event:" lines and
// blank keep-alives, returning only "data:" payloads. At stream close (EOF
// or an explicit done marker) it returns io.EOF and releases the connection.
func (s *ResponseStream) Recv() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			// A trailing fragment without a newline still counts.
			if err == io.EOF {
				if data, ok := dataPayload(line); ok && data != doneMarker {
					s.done = true
					_ = s.body.Close()
					return []byte(data), nil
				}
				s.done = true
				_ = s.body.Close()
				return nil, io.EOF
			}
			s.done = true
			_ = s.body.Close()
			return nil, fmt.Errorf("agent: read stream: %w", err)
		}

		data, ok := dataPayload(line)
		if !ok {
			continue
		}
		if data == doneMarker {
			s.done = true
			_ = s.body.Close()
			return nil, io.EOF
		}

		return []byte(data), nil
	}
}

// Close releases the underlying connection. Safe to call more than once.
func (s *ResponseStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}

// dataPayload extracts the payload of an SSE "data:" line.
func dataPayload(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "), true
}
