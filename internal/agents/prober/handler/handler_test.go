package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go-probe-agent/internal/evidence"
	"go-probe-agent/pkg/models"
)

const target = "https://grafana.example.org"

// scriptedModel replays choices in order and repeats the last one.
type scriptedModel struct {
	mu      sync.Mutex
	choices []*llms.ContentChoice
	err     error
	calls   [][]llms.MessageContent
}

func (m *scriptedModel) Complete(_ context.Context, msgs []llms.MessageContent, _ []llms.Tool) (*llms.ContentChoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msgs)
	if m.err != nil {
		return nil, m.err
	}
	i := len(m.calls) - 1
	if i >= len(m.choices) {
		i = len(m.choices) - 1
	}
	return m.choices[i], nil
}

type fakeTools struct {
	mu      sync.Mutex
	results map[string]models.ToolOutcome
	calls   []models.ToolInvocation
}

func (f *fakeTools) Invoke(_ context.Context, inv models.ToolInvocation) models.ToolOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv)
	out, ok := f.results[inv.Name]
	if !ok {
		return models.ToolOutcome{InvocationID: inv.ID, Error: "tool gateway status 500: boom"}
	}
	out.InvocationID = inv.ID
	return out
}

type fakeOCR struct {
	text string
	err  error
}

func (f fakeOCR) Transcribe(context.Context, []byte) (string, error) {
	return f.text, f.err
}

type fakeReporter struct {
	calls int
}

func (f *fakeReporter) Summarize(_ context.Context, _, ocr, dom string) (string, bool, error) {
	f.calls++
	if ocr == "" && dom == "" {
		return "", false, nil
	}
	return "STATUS: HEALTHY", true, nil
}

var limits = Limits{MaxSteps: 4, OCRMaxChars: 50, DOMMaxChars: 80, ToolResultMaxChars: 60}

func pngBase64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func call(name, args string) *llms.ContentChoice {
	return &llms.ContentChoice{
		ToolCalls:  []llms.ToolCall{toolCall("call_"+name, name, args)},
		StopReason: "tool_calls",
	}
}

func newHandler(t *testing.T, m Completer, tools ToolInvoker, ocr Transcriber, r Reporter) *Handler {
	t.Helper()
	return New(m, tools, evidence.New(t.TempDir()), ocr, r, limits)
}

func TestProbeFinishImmediately(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{call("finish", `{"status": "ok", "reason": "looks fine"}`)}}
	tools := &fakeTools{}
	r := &fakeReporter{}

	out := newHandler(t, m, tools, fakeOCR{}, r).Probe(t.Context(), target)

	assert.Equal(t, models.StatusOK, out.Status)
	assert.Equal(t, "looks fine", out.Reason)
	require.Len(t, out.Steps, 1)
	assert.Equal(t, "finish", out.Steps[0].ToolName)
	assert.Empty(t, tools.calls)
	assert.Empty(t, out.WellnessReport)
	assert.Equal(t, 1, r.calls)
}

func TestProbeScreenshotShortCircuits(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{
		call("browser_screenshot", `{"url": "`+target+`"}`),
		call("finish", `{"status": "failed", "reason": "should never be asked"}`),
	}}
	tools := &fakeTools{results: map[string]models.ToolOutcome{
		"browser_screenshot": {Result: map[string]any{"imageBase64": pngBase64(t)}},
	}}
	r := &fakeReporter{}

	out := newHandler(t, m, tools, fakeOCR{text: "Welcome to Grafana\nEmail or username"}, r).Probe(t.Context(), target)

	require.Equal(t, models.StatusOK, out.Status, out.Reason)
	assert.Equal(t, "screenshot captured: Welcome to Grafana Email or username", out.Reason)
	require.NotEmpty(t, out.ScreenshotPath)
	assert.FileExists(t, out.ScreenshotPath)
	assert.Equal(t, "Welcome to Grafana\nEmail or username", out.OCRText)
	assert.Equal(t, "STATUS: HEALTHY", out.WellnessReport)
	require.Len(t, out.Steps, 1)
	assert.Equal(t, "browser_screenshot", out.Steps[0].ToolName)
	assert.Len(t, m.calls, 1)
	assert.Len(t, tools.calls, 1)
}

func TestProbeScreenshotWithoutOCRStillSucceeds(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{call("browser_screenshot", `{"url": "`+target+`"}`)}}
	tools := &fakeTools{results: map[string]models.ToolOutcome{
		"browser_screenshot": {Result: map[string]any{"imageBase64": "data:image/png;base64," + pngBase64(t)}},
	}}

	out := newHandler(t, m, tools, fakeOCR{err: errors.New("vision model unavailable")}, nil).Probe(t.Context(), target)

	assert.Equal(t, models.StatusOK, out.Status)
	assert.Equal(t, "screenshot captured", out.Reason)
	assert.NotEmpty(t, out.ScreenshotPath)
	assert.Empty(t, out.OCRText)
}

func TestProbeEmptyScreenshotFails(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{call("browser_screenshot", `{"url": "`+target+`"}`)}}
	tools := &fakeTools{results: map[string]models.ToolOutcome{
		"browser_screenshot": {Result: map[string]any{"imageBase64": ""}},
	}}

	out := newHandler(t, m, tools, fakeOCR{}, nil).Probe(t.Context(), target)

	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Equal(t, models.ReasonScreenshotFailed, out.Reason)
	assert.Empty(t, out.ScreenshotPath)
	require.Len(t, out.Steps, 1)
}

func TestProbeUndecodableScreenshotFails(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{call("browser_screenshot", `{"url": "`+target+`"}`)}}
	tools := &fakeTools{results: map[string]models.ToolOutcome{
		"browser_screenshot": {Result: map[string]any{"imageBase64": base64.StdEncoding.EncodeToString([]byte("not a png"))}},
	}}

	out := newHandler(t, m, tools, fakeOCR{}, nil).Probe(t.Context(), target)

	assert.Equal(t, models.ReasonScreenshotFailed, out.Reason)
}

func TestProbeScreenshotPersistFailure(t *testing.T) {
	occupied := t.TempDir() + "/file"
	require.NoError(t, os.WriteFile(occupied, []byte("x"), 0o644))

	m := &scriptedModel{choices: []*llms.ContentChoice{call("browser_screenshot", `{"url": "`+target+`"}`)}}
	tools := &fakeTools{results: map[string]models.ToolOutcome{
		"browser_screenshot": {Result: map[string]any{"imageBase64": pngBase64(t)}},
	}}

	h := New(m, tools, evidence.New(occupied), fakeOCR{}, nil, limits)
	out := h.Probe(t.Context(), target)

	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Equal(t, models.ReasonScreenshotFailed, out.Reason)
}

func TestProbeUnparseableUntilBudgetExhausted(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{
		{Content: `{"tool_call": {"name": "browser_dom", "arguments": `, StopReason: "stop"},
	}}
	tools := &fakeTools{}

	out := newHandler(t, m, tools, fakeOCR{}, nil).Probe(t.Context(), target)

	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Equal(t, models.ReasonMaxSteps, out.Reason)
	assert.Len(t, out.Steps, limits.MaxSteps)
	assert.Len(t, m.calls, limits.MaxSteps)
	assert.Empty(t, tools.calls)
	for _, s := range out.Steps {
		assert.True(t, strings.HasPrefix(s.Error, "unparseable"), s.Error)
	}

	// system, user, then assistant and corrective user message per turn
	last := m.calls[len(m.calls)-1]
	assert.Len(t, last, 2+2*(limits.MaxSteps-1))
	assert.Equal(t, llms.ChatMessageTypeHuman, last[len(last)-1].Role)
}

func TestProbeProseWithoutCompletedTurnExhaustsBudget(t *testing.T) {
	for _, stop := range []string{"length", ""} {
		t.Run("stop="+stop, func(t *testing.T) {
			m := &scriptedModel{choices: []*llms.ContentChoice{
				{Content: "Let me check the service first and then", StopReason: stop},
			}}
			tools := &fakeTools{}

			out := newHandler(t, m, tools, fakeOCR{}, nil).Probe(t.Context(), target)

			assert.Equal(t, models.StatusFailed, out.Status)
			assert.Equal(t, models.ReasonMaxSteps, out.Reason)
			assert.Len(t, out.Steps, limits.MaxSteps)
			assert.Len(t, m.calls, limits.MaxSteps)
			assert.Empty(t, tools.calls)
			for _, s := range out.Steps {
				assert.True(t, strings.HasPrefix(s.Error, "unparseable: no tool call"), s.Error)
			}
		})
	}
}

func TestProbeUnknownTool(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{call("unknown_tool", `{"url": "`+target+`"}`)}}
	tools := &fakeTools{}

	out := newHandler(t, m, tools, fakeOCR{}, nil).Probe(t.Context(), target)

	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Contains(t, out.Reason, "unknown-tool")
	assert.Empty(t, tools.calls)
}

func TestProbeMissingURLArgument(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{call("browser_dom", `{}`)}}

	out := newHandler(t, m, &fakeTools{}, fakeOCR{}, nil).Probe(t.Context(), target)

	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Equal(t, "invalid-arguments: browser_dom requires url", out.Reason)
}

func TestProbeToolFailuresStayWithinBudget(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{call("http_get", `{"url": "`+target+`"}`)}}
	tools := &fakeTools{} // every call fails

	out := newHandler(t, m, tools, fakeOCR{}, nil).Probe(t.Context(), target)

	assert.Equal(t, models.ReasonMaxSteps, out.Reason)
	assert.Len(t, out.Steps, limits.MaxSteps)
	assert.Len(t, tools.calls, limits.MaxSteps)
	for _, s := range out.Steps {
		assert.Contains(t, s.Error, "500")
	}

	// the error is fed back as the tool result
	last := m.calls[len(m.calls)-1]
	resp, ok := last[len(last)-1].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_http_get", resp.ToolCallID)
	assert.True(t, strings.HasPrefix(resp.Content, "error: "))
}

func TestProbeDOMThenFinishBoundsEvidence(t *testing.T) {
	page := "<html><head><title>Wiki</title><script>var x = 1;</script></head><body>" +
		strings.Repeat("<p>lorem ipsum dolor sit amet</p>", 500) + "</body></html>"
	m := &scriptedModel{choices: []*llms.ContentChoice{
		call("browser_dom", `{"url": "`+target+`"}`),
		call("finish", `{"status": "ok", "reason": "page renders text"}`),
	}}
	tools := &fakeTools{results: map[string]models.ToolOutcome{
		"browser_dom": {Result: map[string]any{"body": `{"html": "` + strings.ReplaceAll(page, `"`, `\"`) + `"}`}},
	}}
	r := &fakeReporter{}

	out := newHandler(t, m, tools, fakeOCR{}, r).Probe(t.Context(), target)

	assert.Equal(t, models.StatusOK, out.Status)
	assert.Equal(t, "page renders text", out.Reason)
	require.Len(t, out.Steps, 2)
	assert.LessOrEqual(t, utf8.RuneCountInString(out.DOMExcerpt), limits.DOMMaxChars)
	assert.True(t, strings.HasPrefix(out.DOMExcerpt, "Wiki lorem ipsum"), out.DOMExcerpt)
	assert.NotContains(t, out.DOMExcerpt, "var x")
	assert.Equal(t, "STATUS: HEALTHY", out.WellnessReport)

	feedback := m.calls[1][len(m.calls[1])-1].Parts[0].(llms.ToolCallResponse)
	assert.Contains(t, feedback.Content, "DOM captured")
	assert.Contains(t, feedback.Content, "call finish")
}

func TestProbeOCRIsTruncated(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{call("browser_screenshot", `{"url": "`+target+`"}`)}}
	tools := &fakeTools{results: map[string]models.ToolOutcome{
		"browser_screenshot": {Result: map[string]any{"imageBase64": pngBase64(t)}},
	}}

	out := newHandler(t, m, tools, fakeOCR{text: strings.Repeat("ä", 10_000)}, nil).Probe(t.Context(), target)

	assert.Equal(t, limits.OCRMaxChars, utf8.RuneCountInString(out.OCRText))
}

func TestProbeHTTPGetResultIsScrubbedAndBounded(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{
		call("http_get", `{"url": "`+target+`"}`),
		call("finish", `{"status": "ok", "reason": "200"}`),
	}}
	tools := &fakeTools{results: map[string]models.ToolOutcome{
		"http_get": {Result: map[string]any{"status": 200, "imageBase64": strings.Repeat("A", 5000)}},
	}}

	out := newHandler(t, m, tools, fakeOCR{}, nil).Probe(t.Context(), target)

	require.Len(t, out.Steps, 2)
	assert.LessOrEqual(t, utf8.RuneCountInString(out.Steps[0].ResultSummary), limits.ToolResultMaxChars)
	assert.Contains(t, out.Steps[0].ResultSummary, "<omitted 5000 bytes>")
}

func TestProbeEmbeddedInvocationRepliesAsUserMessage(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{
		{Content: `{"tool_call": {"name": "http_get", "arguments": {"url": "` + target + `"}}}`, StopReason: "stop"},
		{Content: `{"tool_call": {"name": "finish", "arguments": {"status": "ok", "reason": "reachable"}}}`, StopReason: "stop"},
	}}
	tools := &fakeTools{results: map[string]models.ToolOutcome{
		"http_get": {Result: map[string]any{"status": 200}},
	}}

	out := newHandler(t, m, tools, fakeOCR{}, nil).Probe(t.Context(), target)

	assert.Equal(t, models.StatusOK, out.Status)
	assert.Equal(t, "reachable", out.Reason)
	second := m.calls[1]
	assert.Equal(t, llms.ChatMessageTypeHuman, second[len(second)-1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, second[len(second)-2].Role)
}

func TestProbeAnswersSkippedToolCalls(t *testing.T) {
	first := &llms.ContentChoice{ToolCalls: []llms.ToolCall{
		toolCall("call_a", "http_get", `{"url": "`+target+`"}`),
		toolCall("call_b", "browser_dom", `{"url": "`+target+`"}`),
	}}
	m := &scriptedModel{choices: []*llms.ContentChoice{first, call("finish", `{"reason": "ok"}`)}}
	tools := &fakeTools{results: map[string]models.ToolOutcome{
		"http_get": {Result: map[string]any{"status": 200}},
	}}

	out := newHandler(t, m, tools, fakeOCR{}, nil).Probe(t.Context(), target)

	assert.Equal(t, models.StatusOK, out.Status)
	require.Len(t, tools.calls, 1)
	assert.Equal(t, "http_get", tools.calls[0].Name)

	second := m.calls[1]
	a := second[len(second)-2].Parts[0].(llms.ToolCallResponse)
	b := second[len(second)-1].Parts[0].(llms.ToolCallResponse)
	assert.Equal(t, "call_a", a.ToolCallID)
	assert.Equal(t, "call_b", b.ToolCallID)
	assert.Equal(t, skippedToolCall, b.Content)
}

func TestProbeNoToolCall(t *testing.T) {
	m := &scriptedModel{choices: []*llms.ContentChoice{{Content: "I cannot access the internet.", StopReason: "stop"}}}

	out := newHandler(t, m, &fakeTools{}, fakeOCR{}, nil).Probe(t.Context(), target)

	assert.Equal(t, models.StatusFailed, out.Status)
	assert.True(t, strings.HasPrefix(out.Reason, "no-tool-call"), out.Reason)
	assert.Len(t, out.Steps, 1)
}

func TestProbeModelError(t *testing.T) {
	m := &scriptedModel{err: errors.New("dial tcp: connection refused")}

	out := newHandler(t, m, &fakeTools{}, fakeOCR{}, nil).Probe(t.Context(), target)

	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Equal(t, "model-error: dial tcp: connection refused", out.Reason)
	assert.Len(t, out.Steps, 1)
}

func TestProbeInvalidTarget(t *testing.T) {
	m := &scriptedModel{}
	for _, bad := range []string{"", "grafana", "ftp://files.example.org", "https://"} {
		out := newHandler(t, m, &fakeTools{}, fakeOCR{}, nil).Probe(t.Context(), bad)
		assert.Equal(t, models.StatusFailed, out.Status, bad)
		assert.True(t, strings.HasPrefix(out.Reason, "invalid-target"), out.Reason)
		assert.NotNil(t, out.Steps)
		assert.Empty(t, out.Steps)
	}
	assert.Empty(t, m.calls)
}

func TestProbeIsRepeatable(t *testing.T) {
	newModel := func() *scriptedModel {
		return &scriptedModel{choices: []*llms.ContentChoice{call("browser_screenshot", `{"url": "`+target+`"}`)}}
	}
	tools := &fakeTools{results: map[string]models.ToolOutcome{
		"browser_screenshot": {Result: map[string]any{"imageBase64": pngBase64(t)}},
	}}
	h := newHandler(t, newModel(), tools, fakeOCR{text: "Grafana"}, nil)
	first := h.Probe(t.Context(), target)
	h.model = newModel()
	second := h.Probe(t.Context(), target)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Reason, second.Reason)
}
