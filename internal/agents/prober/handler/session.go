package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"go-probe-agent/pkg/data"
	"go-probe-agent/pkg/logger"
	"go-probe-agent/pkg/memory/buffer"
	"go-probe-agent/pkg/models"
	"go-probe-agent/pkg/prompts"
	"go-probe-agent/pkg/tools"
)

const skippedToolCall = "skipped: only one tool call is processed per turn"

var errEmptyImage = errors.New("empty imageBase64")

// session is the per-target state: history, step log and evidence.
type session struct {
	h      *Handler
	target string
	l      zerolog.Logger

	history buffer.Conversation
	steps   []models.StepLog

	screenshotPath string
	ocrText        string
	domExcerpt     string
}

func (h *Handler) newSession(target string) *session {
	s := &session{
		h:      h,
		target: target,
		l:      log.With().Str(logger.TargetField, target).Logger(),
		steps:  make([]models.StepLog, 0, h.limits.MaxSteps),
	}
	s.history.Add(
		llms.TextParts(llms.ChatMessageTypeSystem, prompts.ProbeSystem),
		llms.TextParts(llms.ChatMessageTypeHuman, format(TargetPrompt, map[string]any{"Target": target})),
	)
	return s
}

func (s *session) run(ctx context.Context) models.ProbeOutcome {
	for step := 1; step <= s.h.limits.MaxSteps; step++ {
		l := s.l.With().Int(logger.StepField, step).Logger()
		l.Debug().Msg("asking the model for the next action...")

		choice, err := s.h.model.Complete(ctx, s.history.Messages(), tools.Schema())
		if err != nil {
			l.Error().Err(err).Msg("model call failed")
			s.log(models.StepLog{StepIndex: step, Error: err.Error()})
			return s.finish(models.StatusFailed, fmt.Sprintf("%s: %s", models.ReasonModelError, data.Excerpt(err.Error(), diagnosticExcerpt)), "")
		}
		s.history.Add(assistantMessage(choice))

		action := Interpret(choice, step)
		l.Debug().Str("action", action.Kind.String()).Str(logger.ToolField, action.Invocation.Name).Msg("interpreted model turn")

		switch action.Kind {
		case Finish:
			s.log(models.StepLog{
				StepIndex:     step,
				ToolName:      action.Invocation.Name,
				Arguments:     action.Invocation.Arguments,
				ResultSummary: fmt.Sprintf("%s: %s", action.Status, action.Reason),
			})
			return s.finish(action.Status, action.Reason, action.Proof)
		case Unparseable:
			l.Warn().Str("diagnostic", action.Diagnostic).Msg("could not interpret model turn")
			s.log(models.StepLog{StepIndex: step, Error: "unparseable: " + action.Diagnostic})
			s.retry(choice, action)
		case Invoke:
			if out, done := s.dispatch(ctx, l, step, action); done {
				return out
			}
		}
	}
	s.l.Warn().Int("max_steps", s.h.limits.MaxSteps).Msg("step budget exhausted")
	return s.finish(models.StatusFailed, models.ReasonMaxSteps, "")
}

// dispatch executes an invocation. done reports whether the session ended.
func (s *session) dispatch(ctx context.Context, l zerolog.Logger, step int, action Action) (models.ProbeOutcome, bool) {
	inv := action.Invocation
	entry := models.StepLog{StepIndex: step, ToolName: inv.Name, Arguments: inv.Arguments}

	if !tools.Declared(inv.Name) {
		l.Warn().Str(logger.ToolField, inv.Name).Msg("model asked for an unknown tool")
		entry.Error = models.ReasonUnknownTool
		s.log(entry)
		return s.finish(models.StatusFailed, fmt.Sprintf("%s: %s", models.ReasonUnknownTool, inv.Name), ""), true
	}
	if tools.RequiresURL(inv.Name) && strings.TrimSpace(inv.Arg("url")) == "" {
		entry.Error = "missing url argument"
		s.log(entry)
		return s.finish(models.StatusFailed, fmt.Sprintf("%s: %s requires url", models.ReasonInvalidArguments, inv.Name), ""), true
	}

	l.Info().Str(logger.ToolField, inv.Name).Str("url", inv.Arg("url")).Msg("invoking tool...")
	outcome := s.h.tools.Invoke(ctx, inv)
	if outcome.Failed() {
		l.Warn().Str(logger.ToolField, inv.Name).Str("error", outcome.Error).Msg("tool call failed")
		entry.Error = outcome.Error
		s.log(entry)
		s.reply(action, "error: "+data.Excerpt(outcome.Error, s.h.limits.ToolResultMaxChars))
		return models.ProbeOutcome{}, false
	}

	switch tools.Tool(inv.Name) {
	case tools.BrowserScreenshot:
		return s.captureScreenshot(ctx, l, entry, outcome), true
	case tools.BrowserDOM:
		s.captureDOM(entry, action, outcome)
		return models.ProbeOutcome{}, false
	default:
		summary := stepSummary(outcome.Result, s.h.limits.ToolResultMaxChars)
		entry.ResultSummary = summary
		s.log(entry)
		s.reply(action, summary)
		return models.ProbeOutcome{}, false
	}
}

// captureScreenshot persists the image, reads it and ends the session: a
// rendered screenshot is sufficient proof of reachability.
func (s *session) captureScreenshot(ctx context.Context, l zerolog.Logger, entry models.StepLog, outcome models.ToolOutcome) models.ProbeOutcome {
	res, _ := outcome.ResultMap()
	encoded, _ := res["imageBase64"].(string)

	img, err := decodeImage(encoded)
	if err != nil {
		l.Error().Err(err).Msg("screenshot could not be decoded")
		entry.Error = err.Error()
		s.log(entry)
		return s.finish(models.StatusFailed, models.ReasonScreenshotFailed, "")
	}
	path, err := s.h.store.Persist(s.target, img)
	if err != nil {
		l.Error().Err(err).Msg("screenshot could not be persisted")
		entry.Error = err.Error()
		s.log(entry)
		return s.finish(models.StatusFailed, models.ReasonScreenshotFailed, "")
	}
	s.screenshotPath = path
	l.Info().Str("path", path).Msg("screenshot saved")

	text, err := s.h.ocr.Transcribe(ctx, img)
	if err != nil {
		l.Warn().Err(err).Msg("ocr failed, keeping screenshot without transcript")
	}
	s.ocrText = data.Truncate(text, s.h.limits.OCRMaxChars)

	entry.ResultSummary = fmt.Sprintf("saved %s (%d bytes), ocr %d chars", path, len(img), utf8.RuneCountInString(s.ocrText))
	s.log(entry)

	reason := models.ReasonScreenshotCapture
	if oneLine := strings.Join(strings.Fields(s.ocrText), " "); oneLine != "" {
		reason += ": " + data.Excerpt(oneLine, reasonOCRExcerpt)
	}
	return s.finish(models.StatusOK, reason, "")
}

func (s *session) captureDOM(entry models.StepLog, action Action, outcome models.ToolOutcome) {
	text := data.HTMLText(extractHTML(outcome.Result))
	s.domExcerpt = data.Truncate(text, s.h.limits.DOMMaxChars)

	length := utf8.RuneCountInString(text)
	entry.ResultSummary = fmt.Sprintf("dom text %d chars", length)
	s.log(entry)

	excerpt := data.Truncate(s.domExcerpt, s.h.limits.ToolResultMaxChars)
	if excerpt == "" {
		excerpt = "(page has no visible text)"
	}
	s.reply(action, format(DOMFeedbackPrompt, map[string]any{"Length": length, "Excerpt": excerpt}))
}

// retry keeps the history well formed after an unusable turn and asks
// the model to try again.
func (s *session) retry(choice *llms.ContentChoice, action Action) {
	msg := format(UnparseablePrompt, map[string]any{"Diagnostic": action.Diagnostic})
	if len(choice.ToolCalls) > 0 {
		for _, tc := range choice.ToolCalls {
			s.history.Add(toolResponse(tc.ID, toolCallName(tc), msg))
		}
		return
	}
	s.history.Add(llms.TextParts(llms.ChatMessageTypeHuman, msg))
}

// reply folds a tool result back into the history, answering skipped calls.
func (s *session) reply(action Action, content string) {
	inv := action.Invocation
	if action.Embedded {
		s.history.Add(llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf("Tool result for %s (%s):\n%s", inv.Name, inv.ID, content)))
	} else {
		s.history.Add(toolResponse(inv.ID, inv.Name, content))
	}
	for _, tc := range action.Skipped {
		s.history.Add(toolResponse(tc.ID, toolCallName(tc), skippedToolCall))
	}
}

func (s *session) log(entry models.StepLog) {
	s.steps = append(s.steps, entry)
}

func (s *session) finish(status models.Status, reason, proof string) models.ProbeOutcome {
	path := s.screenshotPath
	if path == "" {
		path = proof
	}
	steps := make([]models.StepLog, len(s.steps))
	copy(steps, s.steps)
	return models.ProbeOutcome{
		TargetURL:      s.target,
		Status:         status,
		Reason:         reason,
		ScreenshotPath: path,
		DOMExcerpt:     s.domExcerpt,
		OCRText:        s.ocrText,
		Steps:          steps,
	}
}

func assistantMessage(choice *llms.ContentChoice) llms.MessageContent {
	msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if choice.Content != "" || len(choice.ToolCalls) == 0 {
		msg.Parts = append(msg.Parts, llms.TextContent{Text: choice.Content})
	}
	for _, tc := range choice.ToolCalls {
		if tc.Type == "" {
			tc.Type = "function"
		}
		msg.Parts = append(msg.Parts, tc)
	}
	return msg
}

func toolResponse(id, name, content string) llms.MessageContent {
	return llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{
			llms.ToolCallResponse{ToolCallID: id, Name: name, Content: content},
		},
	}
}

func toolCallName(tc llms.ToolCall) string {
	if tc.FunctionCall == nil {
		return ""
	}
	return tc.FunctionCall.Name
}

// decodeImage accepts raw base64 or a data URL and requires a PNG.
func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.IndexByte(encoded, ','); i >= 0 {
			encoded = encoded[i+1:]
		}
	}
	if encoded == "" {
		return nil, errEmptyImage
	}
	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if img, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
	}
	if len(img) == 0 {
		return nil, errEmptyImage
	}
	if _, err := png.DecodeConfig(bytes.NewReader(img)); err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

// extractHTML finds the page markup in a browser_dom result: an html field,
// or a body that is either markup or a JSON document carrying html.
func extractHTML(result any) string {
	switch v := result.(type) {
	case string:
		return htmlFromBody(v)
	case map[string]any:
		if h, ok := v["html"].(string); ok {
			return h
		}
		switch body := v["body"].(type) {
		case string:
			return htmlFromBody(body)
		case map[string]any:
			if h, ok := body["html"].(string); ok {
				return h
			}
		}
	}
	return ""
}

func htmlFromBody(body string) string {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") {
		var inner map[string]any
		if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
			if h, ok := inner["html"].(string); ok {
				return h
			}
		}
	}
	return body
}
