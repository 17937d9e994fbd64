package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/friedman-econ/friedman/internal/progress"
)

// Stream reads a job's progress events.
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// Subscribe opens the progress stream for jobID. It returns once the shell
// has registered the subscription, so an Invoke started afterwards loses no
// lines.
func (c *Client) Subscribe(ctx context.Context, jobID string) (*Stream, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/progress/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, decodeError(resp.StatusCode, data)
	}
	return &Stream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

// Next returns the next event. It returns io.EOF after the done event has
// been delivered or when the server closes the stream.
func (s *Stream) Next() (progress.Event, error) {
	var name string
	var data strings.Builder
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" {
				return progress.Event{}, io.EOF
			}
			if err != io.EOF {
				return progress.Event{}, err
			}
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if name == "" && data.Len() == 0 {
				continue
			}
			var ev progress.Event
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				return progress.Event{}, fmt.Errorf("decoding progress event: %w", err)
			}
			ev.Type = progress.EventType(name)
			return ev, nil
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

// Each calls fn for every progress line until the done event, the end of
// the stream, or an error.
func (s *Stream) Each(fn func(progress.Event)) error {
	for {
		ev, err := s.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if ev.Type == progress.EventDone {
			return nil
		}
		fn(ev)
	}
}

// Close ends the subscription.
func (s *Stream) Close() error {
	return s.body.Close()
}
