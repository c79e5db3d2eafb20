package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrStopTail ends a tail from its record callback without error.
var ErrStopTail = errors.New("stop tail")

// HTTPTransport talks to the admin REST API.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport returns a transport for the API at baseURL. A nil client
// uses http.DefaultClient.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

var _ LogsTransport = (*HTTPTransport)(nil)

// apiError is the error body returned by the API.
type apiError struct {
	Status  int
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s: %s", http.StatusText(e.Status), e.Message)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		e := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(e)
		return resp.StatusCode, e
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func logPath(name string, rest string) string {
	return "/v1/logs/" + url.PathEscape(name) + rest
}

func (t *HTTPTransport) Create(ctx context.Context, name string, partitions int) (bool, error) {
	var out struct {
		Created bool `json:"created"`
	}
	_, err := t.do(ctx, http.MethodPost, "/v1/logs", map[string]any{"name": name, "partitions": partitions}, &out)
	return out.Created, err
}

func (t *HTTPTransport) List(ctx context.Context) ([]LogInfo, error) {
	var out struct {
		Logs []LogInfo `json:"logs"`
	}
	_, err := t.do(ctx, http.MethodGet, "/v1/logs", nil, &out)
	return out.Logs, err
}

func (t *HTTPTransport) Delete(ctx context.Context, name string) error {
	_, err := t.do(ctx, http.MethodDelete, logPath(name, ""), nil, nil)
	return err
}

func (t *HTTPTransport) Append(ctx context.Context, req AppendRequest) (Position, error) {
	body := map[string]any{"payload": req.Payload}
	if req.Partition != nil {
		body["partition"] = *req.Partition
	}
	if req.Key != "" {
		body["key"] = req.Key
	}
	var out Position
	_, err := t.do(ctx, http.MethodPost, logPath(req.Log, "/append"), body, &out)
	return out, err
}

func (t *HTTPTransport) Lag(ctx context.Context, name, group string) (Lag, error) {
	var out Lag
	_, err := t.do(ctx, http.MethodGet, logPath(name, "/lag?group="+url.QueryEscape(group)), nil, &out)
	return out, err
}

func (t *HTTPTransport) Groups(ctx context.Context, name string) ([]string, error) {
	var out struct {
		Groups []string `json:"groups"`
	}
	_, err := t.do(ctx, http.MethodGet, logPath(name, "/groups"), nil, &out)
	return out.Groups, err
}

// Tail reads the SSE stream of the tail endpoint.
func (t *HTTPTransport) Tail(ctx context.Context, req TailRequest, onRecord func(Record) error) error {
	q := url.Values{}
	q.Set("group", req.Group)
	if req.From != "" {
		q.Set("from", req.From)
	}
	if req.Commit {
		q.Set("commit", "true")
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+logPath(req.Log, "/tail?"+q.Encode()), nil)
	if err != nil {
		return err
	}
	hreq.Header.Set("Accept", "text/event-stream")
	resp, err := t.client.Do(hreq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		e := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(e)
		return e
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := onRecord(rec); err != nil {
			if errors.Is(err, ErrStopTail) {
				return nil
			}
			return err
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
