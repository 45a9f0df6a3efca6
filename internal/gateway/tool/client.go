// Package tool is the client of the remote tool-execution service.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go-probe-agent/pkg/data"
	"go-probe-agent/pkg/logger"
	"go-probe-agent/pkg/models"
)

const errorBodyExcerpt = 300

// Client performs POST {base}/call-tool. It knows nothing about individual tools.
type Client struct {
	http    *http.Client
	baseURL string
	timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

type callRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Result    json.RawMessage `json:"result"`
	ElapsedMs *float64        `json:"elapsedMs"`
}

// Invoke runs one tool call. Failures are reported in the outcome's Error.
func (c *Client) Invoke(ctx context.Context, inv models.ToolInvocation) models.ToolOutcome {
	out := models.ToolOutcome{InvocationID: inv.ID}
	l := log.With().Str(logger.ToolField, inv.Name).Logger()

	args := inv.Arguments
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(callRequest{Name: inv.Name, Args: args})
	if err != nil {
		out.Error = fmt.Sprintf("encode request: %v", err)
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call-tool", bytes.NewReader(body))
	if err != nil {
		out.Error = fmt.Sprintf("build request: %v", err)
		return out
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		out.Error = fmt.Sprintf("call tool: %v", err)
		l.Warn().Err(err).Msg("tool gateway unreachable")
		return out
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		out.Error = fmt.Sprintf("read response: %v", err)
		return out
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Error = fmt.Sprintf("tool gateway status %d: %s", resp.StatusCode, data.Excerpt(string(raw), errorBodyExcerpt))
		l.Warn().Int("status", resp.StatusCode).Msg("tool gateway returned an error status")
		return out
	}

	result, elapsed, err := unwrap(raw)
	if err != nil {
		out.Error = fmt.Sprintf("decode response: %v: %s", err, data.Excerpt(string(raw), errorBodyExcerpt))
		return out
	}
	if elapsed < 0 {
		elapsed = float64(time.Since(start).Milliseconds())
	}
	l.Debug().Float64("elapsed_ms", elapsed).Msg("tool call completed")
	out.Result = result
	return out
}

// unwrap returns the "result" member of the envelope, or the whole body when
// the envelope shape is absent. elapsed is -1 when the envelope has no timing.
func unwrap(raw []byte) (any, float64, error) {
	var env callResponse
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Result) > 0 && string(env.Result) != "null" {
		var result any
		if err := json.Unmarshal(env.Result, &result); err != nil {
			return nil, -1, err
		}
		elapsed := -1.0
		if env.ElapsedMs != nil {
			elapsed = *env.ElapsedMs
		}
		return result, elapsed, nil
	}

	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, -1, err
	}
	return result, -1, nil
}
