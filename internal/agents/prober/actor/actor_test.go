package actor

import (
	"context"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go-probe-agent/internal/agents/prober/handler"
	"go-probe-agent/internal/evidence"
	"go-probe-agent/pkg/messages"
	"go-probe-agent/pkg/models"
)

type finishingModel struct{}

func (finishingModel) Complete(context.Context, []llms.MessageContent, []llms.Tool) (*llms.ContentChoice, error) {
	return &llms.ContentChoice{ToolCalls: []llms.ToolCall{{
		ID:           "call_1",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: "finish", Arguments: `{"status": "ok", "reason": "looks fine"}`},
	}}}, nil
}

type panickingModel struct{}

func (panickingModel) Complete(context.Context, []llms.MessageContent, []llms.Tool) (*llms.ContentChoice, error) {
	panic("backend exploded")
}

var limits = handler.Limits{MaxSteps: 3, OCRMaxChars: 100, DOMMaxChars: 100, ToolResultMaxChars: 100}

func request(t *testing.T, h *handler.Handler, target string) messages.ProbeResult {
	t.Helper()
	root := actor.NewActorSystem().Root
	pid := root.Spawn(actor.PropsFromProducer(New(h)))
	defer root.Stop(pid)

	id := uuid.New()
	res, err := root.RequestFuture(pid, messages.NewProbe{Ctx: t.Context(), RequestID: id, Target: target}, 5*time.Second).Result()
	require.NoError(t, err)
	reply, ok := res.(messages.ProbeResult)
	require.True(t, ok, "unexpected reply %T", res)
	assert.Equal(t, id, reply.RequestID)
	return reply
}

func TestProberRespondsWithOutcome(t *testing.T) {
	h := handler.New(finishingModel{}, nil, evidence.New(t.TempDir()), nil, nil, limits)

	reply := request(t, h, "https://a.example")

	assert.Equal(t, models.StatusOK, reply.Outcome.Status)
	assert.Equal(t, "looks fine", reply.Outcome.Reason)
}

func TestProberTurnsPanicIntoFailure(t *testing.T) {
	h := handler.New(panickingModel{}, nil, evidence.New(t.TempDir()), nil, nil, limits)

	reply := request(t, h, "https://a.example")

	assert.Equal(t, models.StatusFailed, reply.Outcome.Status)
	assert.Equal(t, "session-panic: backend exploded", reply.Outcome.Reason)
	assert.Equal(t, "https://a.example", reply.Outcome.TargetURL)
}
