package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/authretry"
)

// HTTPError is a non-2xx response. Decoded holds the body parsed as JSON
// when it parses.
type HTTPError struct {
	Method  string
	URL     string
	Status  int
	Body    []byte
	Decoded any
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Status, body)
}

// AsHTTPError extracts an *HTTPError from err's chain.
func AsHTTPError(err error) (*HTTPError, bool) {
	var h *HTTPError
	if errors.As(err, &h) {
		return h, true
	}
	return nil, false
}

// DecodedString walks a path of object keys through Decoded and returns the
// string at the end, or "".
func (e *HTTPError) DecodedString(path ...string) string {
	cur := e.Decoded
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[key]
	}
	s, _ := cur.(string)
	return s
}

// AuthFunc sets credentials on an outgoing request. It runs once per
// attempt so a refreshed credential is picked up by the retry.
type AuthFunc func(ctx context.Context, req *http.Request) error

// Client is a small JSON-over-HTTP client shared by the REST adapters.
type Client struct {
	BaseURL   string
	HTTP      *http.Client
	UserAgent string
	Auth      AuthFunc
	// Refresher, when set, brackets every call with one refresh-and-retry.
	Refresher authretry.Refresher
}

// Request describes one call. Path is joined to BaseURL unless it is an
// absolute URL. JSON, when set, is marshalled as the body; otherwise Body is
// sent with ContentType.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	JSON        any
	Body        []byte
	ContentType string
}

// Get is a GET of path with query.
func Get(path string, query url.Values) Request {
	return Request{Method: http.MethodGet, Path: path, Query: query}
}

// Do sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, _, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Transport(err, "%s %s: decoding response", req.Method, req.Path)
	}
	return nil
}

// DoRaw sends req and returns the response body and content type.
func (c *Client) DoRaw(ctx context.Context, req Request) ([]byte, string, error) {
	payload := req.Body
	contentType := req.ContentType
	if req.JSON != nil {
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("DoRaw: encoding %s %s: %w", req.Method, req.Path, err)
		}
		payload = b
		contentType = "application/json"
	}

	target, err := c.resolve(req)
	if err != nil {
		return nil, "", apperr.Param("invalid request URL %q: %v", req.Path, err)
	}

	type result struct {
		body        []byte
		contentType string
	}
	res, err := authretry.Do(ctx, c.Refresher, func(ctx context.Context) (result, error) {
		body, ct, err := c.send(ctx, req.Method, target, payload, contentType)
		return result{body, ct}, err
	})
	return res.body, res.contentType, err
}

func (c *Client) resolve(req Request) (string, error) {
	raw := req.Path
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte, contentType string) ([]byte, string, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, "", fmt.Errorf("send: building request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.UserAgent)
	}
	if c.Auth != nil {
		if err := c.Auth(ctx, httpReq); err != nil {
			return nil, "", err
		}
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, "", apperr.Transport(err, "%s %s", method, target)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperr.Transport(err, "%s %s: reading response", method, target)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &HTTPError{Method: method, URL: target, Status: resp.StatusCode, Body: respBody}
		var decoded any
		if json.Unmarshal(respBody, &decoded) == nil {
			herr.Decoded = decoded
		}
		return nil, "", apperr.Transport(herr, "%s request failed", method)
	}
	return respBody, resp.Header.Get("Content-Type"), nil
}

// Download fetches rawURL with hc and no credentials, for attachment content
// served from pre-signed or public URLs.
func Download(ctx context.Context, hc *http.Client, rawURL string) ([]byte, string, error) {
	c := &Client{HTTP: hc}
	return c.DoRaw(ctx, Get(rawURL, nil))
}
