// Package httpengine talks to a remote intelligence engine over HTTP.
//
// The engine accepts POST {base}/v1/analyze and answers with a stream of
// newline-delimited JSON messages:
//
//	{"progress":10,"step":"detecting players"}
//	{"progress":90,"step":"scoring"}
//	{"result":{...intelligence result...}}
//
// or, on failure, a final {"error":{"message":"...","retryable":true}}.
package httpengine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/matchintel/internal/config"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

const maxMessageBytes = 16 << 20

// Engine implements models.IntelligenceEngine against the remote HTTP API.
type Engine struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates an Engine. RequestTimeout bounds the wait for response headers
// only; the stream itself is bounded by the caller's context.
func New(cfg config.EngineConfig) *Engine {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.RequestTimeout
	return &Engine{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Transport: transport},
	}
}

func (e *Engine) Name() string { return "http" }

type streamMessage struct {
	Progress *int            `json:"progress"`
	Step     string          `json:"step"`
	Result   json.RawMessage `json:"result"`
	Error    *streamError    `json:"error"`
}

type streamError struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Analyze starts a remote analysis. Errors before the stream opens are
// returned directly; later failures arrive as a terminal update.
func (e *Engine) Analyze(ctx context.Context, req models.AnalysisRequest) (<-chan models.EngineUpdate, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding analyze request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	updates := make(chan models.EngineUpdate)
	go e.stream(ctx, resp.Body, updates)
	return updates, nil
}

func (e *Engine) stream(ctx context.Context, body io.ReadCloser, updates chan<- models.EngineUpdate) {
	defer close(updates)
	defer body.Close()

	send := func(u models.EngineUpdate) bool {
		select {
		case updates <- u:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxMessageBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg streamMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			send(models.EngineUpdate{Err: fmt.Errorf("%w: malformed stream message: %v", models.ErrEnginePermanent, err)})
			return
		}
		switch {
		case msg.Error != nil:
			sentinel := models.ErrEnginePermanent
			if msg.Error.Retryable {
				sentinel = models.ErrEngineTransient
			}
			send(models.EngineUpdate{Err: fmt.Errorf("%w: %s", sentinel, msg.Error.Message)})
			return
		case len(msg.Result) > 0 && string(msg.Result) != "null":
			result := make(json.RawMessage, len(msg.Result))
			copy(result, msg.Result)
			send(models.EngineUpdate{Result: result})
			return
		case msg.Progress != nil:
			if !send(models.EngineUpdate{Progress: *msg.Progress, Step: msg.Step}) {
				return
			}
		}
	}

	err := scanner.Err()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		send(models.EngineUpdate{Err: classifyError(err)})
		return
	}
	send(models.EngineUpdate{Err: fmt.Errorf("%w: stream ended without a result", models.ErrEngineTransient)})
}

func statusError(code int, msg string) error {
	if code == http.StatusTooManyRequests || code >= 500 {
		return fmt.Errorf("%w: status %d: %s", models.ErrEngineTransient, code, msg)
	}
	return fmt.Errorf("%w: status %d: %s", models.ErrEnginePermanent, code, msg)
}

// classifyError maps transport-level errors to engine sentinel errors.
// Context errors are passed through so callers can tell cancellation from failure.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: engine timed out: %v", models.ErrEngineTransient, err)
	}
	return fmt.Errorf("%w: %v", models.ErrEngineTransient, err)
}

var _ models.IntelligenceEngine = (*Engine)(nil)
