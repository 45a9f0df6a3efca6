package batch

import (
	"fmt"

	"github.com/asynkron/protoactor-go/actor"
	proberActor "go-probe-agent/internal/agents/prober/actor"
	proberHandler "go-probe-agent/internal/agents/prober/handler"
	reporter "go-probe-agent/internal/agents/reporter/handler"
	"go-probe-agent/internal/config"
	"go-probe-agent/internal/evidence"
	"go-probe-agent/internal/gateway/model"
	"go-probe-agent/internal/gateway/tool"
)

// FromConfig wires the gateways, evidence store and reporters into a coordinator.
func FromConfig(cfg *config.Config, root *actor.RootContext) (*Coordinator, error) {
	timeout := cfg.Probe.CallTimeout

	agentLLM, err := model.NewLLM(cfg.LLM, cfg.LLM.Model, timeout)
	if err != nil {
		return nil, fmt.Errorf("agent model: %w", err)
	}
	ocrLLM, err := model.NewLLM(cfg.LLM, cfg.LLM.OCRModel, timeout)
	if err != nil {
		return nil, fmt.Errorf("ocr model: %w", err)
	}

	var wellness proberHandler.Reporter
	if cfg.Probe.WellnessEnabled {
		wellness = reporter.NewWellness(agentLLM, cfg.LLM.MaxTokens, timeout)
	}

	h := proberHandler.New(
		model.New(agentLLM, cfg.LLM, timeout),
		tool.New(cfg.ToolServerURL, timeout),
		evidence.New(cfg.ProofsDir),
		reporter.NewOCR(model.New(ocrLLM, cfg.LLM, timeout)),
		wellness,
		proberHandler.Limits{
			MaxSteps:           cfg.Probe.MaxSteps,
			OCRMaxChars:        cfg.Probe.OCRMaxChars,
			DOMMaxChars:        cfg.Probe.DOMMaxChars,
			ToolResultMaxChars: cfg.Probe.ToolResultMaxChars,
		},
	)

	return New(root, proberActor.New(h), cfg.Probe.Concurrency, cfg.Probe.SessionTimeout()), nil
}
