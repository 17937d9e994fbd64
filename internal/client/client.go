// Package client talks to a running friedman-shell over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/friedman-econ/friedman/internal/api"
	"github.com/friedman-econ/friedman/internal/command"
	"github.com/friedman-econ/friedman/internal/dataset"
	"github.com/friedman-econ/friedman/internal/history"
	"github.com/friedman-econ/friedman/internal/tlsutil"
)

// Client is an HTTP client for the shell API. Invocations can run for a long
// time, so there is no client-side timeout; bound calls with ctx instead.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the shell at baseURL. An empty token sends no
// Authorization header. HTTPS to loopback accepts the shell's self-signed
// certificate.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    tlsutil.NewHTTPClient(0),
	}
}

// APIError is a non-2xx response from the shell.
type APIError struct {
	Status   int
	Kind     string
	Message  string
	ExitCode *int
	Stderr   string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("unexpected status %d", e.Status)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends the request and returns the body of a response with the wanted
// status, or an *APIError.
func (c *Client) do(req *http.Request, want int) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		return nil, decodeError(resp.StatusCode, data)
	}
	return data, nil
}

func decodeError(status int, body []byte) *APIError {
	var er api.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == "" {
		return &APIError{Status: status, Message: fmt.Sprintf("unexpected status %d: %s", status, bytes.TrimSpace(body))}
	}
	return &APIError{
		Status:   status,
		Kind:     er.Error,
		Message:  er.Message,
		ExitCode: er.ExitCode,
		Stderr:   er.Stderr,
	}
}

func (c *Client) call(ctx context.Context, method, path string, body any, want int, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	data, err := c.do(req, want)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = json.RawMessage(data)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Status gets the shell status
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var status api.StatusResponse
	if err := c.call(ctx, http.MethodGet, "/status", nil, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Operations lists the operation catalog.
func (c *Client) Operations(ctx context.Context) ([]*command.Descriptor, error) {
	var ops []*command.Descriptor
	if err := c.call(ctx, http.MethodGet, "/operations", nil, http.StatusOK, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

// Invoke runs an operation and returns the engine's JSON document. A
// non-empty jobID streams progress; call Subscribe first to receive it.
func (c *Client) Invoke(ctx context.Context, operation string, params map[string]json.RawMessage, jobID string) (json.RawMessage, error) {
	var out json.RawMessage
	body := api.InvokeRequest{Params: params, JobID: jobID}
	if err := c.call(ctx, http.MethodPost, "/operations/"+url.PathEscape(operation), body, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Preview returns the argument vector an invocation would run with.
func (c *Client) Preview(ctx context.Context, operation string, params map[string]json.RawMessage) (*api.PreviewResponse, error) {
	var out api.PreviewResponse
	body := api.InvokeRequest{Params: params}
	if err := c.call(ctx, http.MethodPost, "/operations/"+url.PathEscape(operation)+"/preview", body, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadDataset registers a CSV or spreadsheet file with the shell.
func (c *Client) LoadDataset(ctx context.Context, path, sheet string) (*dataset.Info, error) {
	var info dataset.Info
	body := api.LoadDatasetRequest{Path: path, Sheet: sheet}
	if err := c.call(ctx, http.MethodPost, "/datasets", body, http.StatusCreated, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Datasets lists registered datasets in load order.
func (c *Client) Datasets(ctx context.Context) ([]dataset.Info, error) {
	var list []dataset.Info
	if err := c.call(ctx, http.MethodGet, "/datasets", nil, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Dataset gets one registered dataset.
func (c *Client) Dataset(ctx context.Context, id string) (*dataset.Info, error) {
	var info dataset.Info
	if err := c.call(ctx, http.MethodGet, "/datasets/"+url.PathEscape(id), nil, http.StatusOK, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// PreviewDataset returns the engine's preview of a dataset's first rows.
// rows <= 0 uses the server default.
func (c *Client) PreviewDataset(ctx context.Context, id string, rows int) (json.RawMessage, error) {
	path := "/datasets/" + url.PathEscape(id) + "/preview"
	if rows > 0 {
		path += "?rows=" + strconv.Itoa(rows)
	}
	var out json.RawMessage
	if err := c.call(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History gets one journal entry.
func (c *Client) History(ctx context.Context, jobID string) (*history.Entry, error) {
	var entry history.Entry
	if err := c.call(ctx, http.MethodGet, "/history/"+url.PathEscape(jobID), nil, http.StatusOK, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
