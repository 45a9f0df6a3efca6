package actor

import (
	"context"
	"fmt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog/log"
	"go-probe-agent/internal/agents/prober/handler"
	"go-probe-agent/pkg/logger"
	"go-probe-agent/pkg/messages"
	"go-probe-agent/pkg/models"
)

// Prober owns one probe session at a time. A panic inside the session is
// turned into a failed outcome so the requester always gets a reply.
type Prober struct {
	handler *handler.Handler
}

func New(h *handler.Handler) func() actor.Actor {
	return func() actor.Actor {
		return &Prober{
			handler: h,
		}
	}
}

func (agent *Prober) Receive(ac actor.Context) {
	l := log.With().Fields(map[string]interface{}{logger.ActorIDField: ac.Self().GetId(), logger.AgentNameField: "prober"}).Logger()
	switch msg := ac.Message().(type) {
	case *actor.Started:
		l.Debug().Msg("starting actor")
	case *actor.Stopping:
		l.Debug().Msg("stopping actor")
	case *actor.Stopped:
		l.Debug().Msg("stopped actor")
	case *actor.Restarting:
		l.Debug().Msg("restarting actor")
	case messages.NewProbe:
		l.Debug().Str(logger.RequestTaskID, msg.RequestID.String()).Str(logger.TargetField, msg.Target).Msg("NewProbe received")
		out := agent.probe(msg)
		ac.Respond(messages.ProbeResult{RequestID: msg.RequestID, Outcome: out})
	default:
		l.Warn().Msgf("unknown message: %v", msg)
	}
}

func (agent *Prober) probe(msg messages.NewProbe) (out models.ProbeOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str(logger.TargetField, msg.Target).Msgf("probe session panicked: %v", r)
			out = models.Failed(msg.Target, fmt.Sprintf("%s: %v", models.ReasonSessionPanic, r))
		}
	}()

	ctx := msg.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return agent.handler.Probe(ctx, msg.Target)
}
