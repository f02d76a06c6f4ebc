// Package tools dispatches model-issued tool calls to external HTTP services.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/soyeahso/liverelay/internal/config"
	"github.com/soyeahso/liverelay/internal/logging"
	"github.com/soyeahso/liverelay/internal/media"
)

// Dispatcher resolves tool names to configured endpoints and invokes them.
// Each invocation is independent; the dispatcher holds no session state.
type Dispatcher struct {
	endpoints map[string]config.ToolEntry
	timeout   time.Duration
	client    *http.Client
	log       *logging.Logger
}

// New creates a dispatcher from the tool endpoint configuration.
func New(cfg config.ToolsConfig, log *logging.Logger) *Dispatcher {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		endpoints: cfg.Endpoints,
		timeout:   timeout,
		client:    &http.Client{},
		log:       log.Sub("tools"),
	}
}

// Declarations returns function declarations for all configured tools,
// suitable for advertising to the model at session setup.
func (d *Dispatcher) Declarations() []media.FunctionDecl {
	decls := make([]media.FunctionDecl, 0, len(d.endpoints))
	for name, entry := range d.endpoints {
		decls = append(decls, media.FunctionDecl{
			Name:        name,
			Description: entry.Description,
			Parameters:  entry.Parameters,
		})
	}
	return decls
}

// Invoke calls the named tool with the given JSON arguments and returns
// the parsed JSON result. An unknown tool name is a configuration error
// (KindNotFound), never a silent no-op. At most one automatic retry is
// performed, and only for transient network failures.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	entry, ok := d.endpoints[name]
	if !ok {
		d.log.Error().Str("tool", name).Msg("unknown tool")
		return nil, &Error{Kind: KindNotFound, Tool: name, Message: "no endpoint configured"}
	}

	reqURL, err := buildURL(entry.URL, args)
	if err != nil {
		return nil, &Error{Kind: KindInvalidArgument, Tool: name, Message: err.Error()}
	}

	var result json.RawMessage
	err = retry.Do(
		func() error {
			var aerr error
			result, aerr = d.call(ctx, name, reqURL)
			return aerr
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
	if err != nil {
		return nil, AsError(name, err)
	}
	return result, nil
}

// call performs a single HTTP invocation with the dispatcher's timeout.
func (d *Dispatcher) call(ctx context.Context, name, reqURL string) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindInvalidArgument, Tool: name, Message: err.Error()}
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Tool: name, Message: fmt.Sprintf("no response within %s", d.timeout)}
		}
		// Raw transport errors stay unwrapped so the retry policy can
		// recognize connection refused/reset.
		return nil, fmt.Errorf("calling %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", name, err)
	}

	d.log.Debug().
		Str("tool", name).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("tool call completed")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, Tool: name, Message: "endpoint returned 404"}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &Error{Kind: KindInvalidArgument, Tool: name, Message: fmt.Sprintf("endpoint returned %d: %s", resp.StatusCode, truncate(body))}
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{Kind: KindUnavailable, Tool: name, Message: fmt.Sprintf("endpoint returned %d", resp.StatusCode)}
	}

	if !json.Valid(body) {
		return nil, &Error{Kind: KindInvalidArgument, Tool: name, Message: "endpoint returned invalid JSON"}
	}
	return json.RawMessage(body), nil
}

// buildURL appends the tool arguments as URL query parameters.
func buildURL(base string, args json.RawMessage) (string, error) {
	if len(args) == 0 {
		return base, nil
	}

	var params map[string]any
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if len(params) == 0 {
		return base, nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, fmt.Sprint(v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// isTransient reports whether an invocation failure is worth one retry:
// connection refused/reset and timeouts. Tool-reported application errors
// (HTTP status, bad JSON) are never retried.
func isTransient(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == KindTimeout
	}
	if isTimeout(err) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
