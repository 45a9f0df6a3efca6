package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	langChainPrompts "github.com/tmc/langchaingo/prompts"
	"go-probe-agent/pkg/data"
	"go-probe-agent/pkg/logger"
	"go-probe-agent/pkg/models"
	"go-probe-agent/pkg/prompts"
)

const reasonOCRExcerpt = 200

var (
	TargetPrompt      = langChainPrompts.NewPromptTemplate(prompts.ProbeTarget, []string{"Target"})
	UnparseablePrompt = langChainPrompts.NewPromptTemplate(prompts.ProbeUnparseable, []string{"Diagnostic"})
	DOMFeedbackPrompt = langChainPrompts.NewPromptTemplate(prompts.DOMFeedback, []string{"Length", "Excerpt"})
)

type Completer interface {
	Complete(ctx context.Context, msgs []llms.MessageContent, tools []llms.Tool) (*llms.ContentChoice, error)
}

type ToolInvoker interface {
	Invoke(ctx context.Context, inv models.ToolInvocation) models.ToolOutcome
}

type EvidenceStore interface {
	Persist(target string, data []byte) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, png []byte) (string, error)
}

type Reporter interface {
	Summarize(ctx context.Context, target, ocr, dom string) (string, bool, error)
}

// Limits bound a session and the evidence it keeps.
type Limits struct {
	MaxSteps           int
	OCRMaxChars        int
	DOMMaxChars        int
	ToolResultMaxChars int
}

type Handler struct {
	model    Completer
	tools    ToolInvoker
	store    EvidenceStore
	ocr      Transcriber
	wellness Reporter // nil disables the wellness report
	limits   Limits
}

func New(model Completer, tools ToolInvoker, store EvidenceStore, ocr Transcriber, wellness Reporter, limits Limits) *Handler {
	return &Handler{
		model:    model,
		tools:    tools,
		store:    store,
		ocr:      ocr,
		wellness: wellness,
		limits:   limits,
	}
}

// Probe drives one target from the seeded conversation to a terminal
// outcome. It always returns an outcome; failures are encoded in it.
func (h *Handler) Probe(ctx context.Context, target string) models.ProbeOutcome {
	l := log.With().Str(logger.TargetField, target).Logger()

	if err := validateTarget(target); err != nil {
		l.Warn().Err(err).Msg("rejecting target")
		return models.Failed(target, fmt.Sprintf("%s: %v", models.ReasonInvalidTarget, err))
	}

	out := h.newSession(target).run(ctx)
	l.Info().Str("status", string(out.Status)).Str("reason", out.Reason).Int("steps", len(out.Steps)).Msg("probe finished")

	if h.wellness != nil {
		report, ok, err := h.wellness.Summarize(ctx, target, out.OCRText, out.DOMExcerpt)
		switch {
		case err != nil:
			l.Warn().Err(err).Msg("wellness report failed")
		case ok:
			out.WellnessReport = report
		}
	}
	return out
}

func validateTarget(target string) error {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func format(p langChainPrompts.PromptTemplate, values map[string]any) string {
	s, err := p.Format(values)
	if err != nil {
		// templates are static; only a programming error lands here
		log.Error().Err(err).Msg("prompt template")
		return p.Template
	}
	return s
}

func stepSummary(v any, limit int) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data.Scrub(v)); err != nil {
		return data.Excerpt(fmt.Sprint(v), limit)
	}
	return data.Truncate(strings.TrimSpace(b.String()), limit)
}
