package handler

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	langChainPrompts "github.com/tmc/langchaingo/prompts"
	"go-probe-agent/pkg/prompts"
)

const missingEvidence = "(not available)"

var (
	WellnessPrompt = langChainPrompts.NewPromptTemplate(prompts.Wellness, []string{"URL", "OCR", "DOM"})
)

// Completer is the subset of the model gateway the OCR step needs.
type Completer interface {
	Complete(ctx context.Context, msgs []llms.MessageContent, tools []llms.Tool) (*llms.ContentChoice, error)
}

// OCR transcribes screenshots with a vision capable model.
type OCR struct {
	model Completer
}

func NewOCR(model Completer) *OCR {
	return &OCR{model: model}
}

// Transcribe returns the text the model reads from a PNG image.
func (o *OCR) Transcribe(ctx context.Context, png []byte) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	msgs := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextContent{Text: prompts.OCR},
				llms.ImageURLContent{URL: dataURL},
			},
		},
	}
	choice, err := o.model.Complete(ctx, msgs, nil)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return strings.TrimSpace(choice.Content), nil
}

// Wellness writes the free-text health report of a target.
type Wellness struct {
	chain     chains.Chain
	timeout   time.Duration
	maxTokens int
}

func NewWellness(llm llms.Model, maxTokens int, timeout time.Duration) *Wellness {
	return &Wellness{
		chain:     chains.NewLLMChain(llm, WellnessPrompt),
		timeout:   timeout,
		maxTokens: maxTokens,
	}
}

// Summarize returns ok=false when there is no evidence to report on. The
// report is returned verbatim; its structure is not validated.
func (w *Wellness) Summarize(ctx context.Context, target, ocr, dom string) (string, bool, error) {
	ocr, dom = strings.TrimSpace(ocr), strings.TrimSpace(dom)
	if ocr == "" && dom == "" {
		return "", false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	completion, err := chains.Call(ctx, w.chain, map[string]any{
		"URL": target,
		"OCR": orMissing(ocr),
		"DOM": orMissing(dom),
	}, chains.WithTemperature(0), chains.WithMaxTokens(w.maxTokens))
	if err != nil {
		return "", false, fmt.Errorf("call: %w", err)
	}

	text, ok := completion[w.chain.GetOutputKeys()[0]].(string)
	if !ok {
		return "", false, fmt.Errorf("unexpected completion output: %v", completion)
	}
	return text, true, nil
}

func orMissing(s string) string {
	if s == "" {
		return missingEvidence
	}
	return s
}
