// Package transport sends JSON requests to the Geosnap backend and attaches
// the bearer token to authenticated calls.
//
// The transport never refreshes or stores credentials. When the backend
// answers 401 it notifies the registered invalidation handlers once for the
// rejected token and returns common.ErrUnauthorized; deciding whether to
// refresh and retry belongs to the session manager.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/common"
	"github.com/dmitrijs2005/geosnap/internal/logging"
)

const (
	DefaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
)

// TokenSource yields the access token to attach to the next request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// InvalidationFunc is called when the backend rejects rejectedToken.
type InvalidationFunc func(ctx context.Context, rejectedToken string)

// StatusError describes a non-2xx backend answer. It unwraps to the error
// kind the status maps to.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
	Kind    error
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("%s: %s %s: %d %s", e.Kind, e.Method, e.Path, e.Code, msg)
}

func (e *StatusError) Unwrap() error {
	return e.Kind
}

// Classify maps an HTTP status to the error taxonomy. It returns nil for 2xx.
func Classify(code int) error {
	switch {
	case code >= 200 && code <= 299:
		return nil
	case code == http.StatusUnauthorized:
		return common.ErrUnauthorized
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return common.ErrNetworkUnavailable
	default:
		return common.ErrRejected
	}
}

// NetworkError maps a failed round trip. Cancellation is passed through so
// that callers can tell an abandoned call from an unreachable server.
func NetworkError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", common.ErrNetworkUnavailable, op, err)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     logging.Logger

	mu       sync.Mutex
	handlers []InvalidationFunc

	// sigMu is held while handlers run so that concurrent 401s for the same
	// token return only after the first notification has been handled.
	sigMu     sync.Mutex
	signalled string
}

// New returns a transport for baseURL. A nil httpClient gets DefaultTimeout.
func New(baseURL string, httpClient *http.Client, tokens TokenSource, log logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		log:     log,
	}
}

// OnSessionInvalidated registers fn to be called on a 401.
func (c *Client) OnSessionInvalidated(fn InvalidationFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Do sends an authenticated request. body, when not nil, is sent as JSON;
// a 2xx JSON answer is decoded into out when out is not nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, token, body, out)
}

// DoPublic sends a request without credentials.
func (c *Client) DoPublic(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, method, path, "", body, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return NetworkError(ctx, method+" "+path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return NetworkError(ctx, "read "+path, err)
	}

	if kind := Classify(resp.StatusCode); kind != nil {
		c.log.Debug(ctx, "backend call failed", "method", method, "path", path, "status", resp.StatusCode)
		if errors.Is(kind, common.ErrUnauthorized) && token != "" {
			c.signal(ctx, token)
		}
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: errorMessage(data), Kind: kind}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// signal notifies handlers once per rejected token.
func (c *Client) signal(ctx context.Context, token string) {
	c.sigMu.Lock()
	defer c.sigMu.Unlock()
	if c.signalled == token {
		return
	}
	c.signalled = token

	c.mu.Lock()
	handlers := append([]InvalidationFunc(nil), c.handlers...)
	c.mu.Unlock()

	c.log.Info(ctx, "session invalidated by backend", "access_token", logging.RedactToken(token))
	for _, h := range handlers {
		h(ctx, token)
	}
}

func errorMessage(data []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
