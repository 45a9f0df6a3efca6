package messages

import (
	"context"

	"github.com/google/uuid"
	"go-probe-agent/pkg/models"
)

// NewProbe asks a prober actor to run one session against Target.
type NewProbe struct {
	Ctx       context.Context
	RequestID uuid.UUID
	Target    string
}

// ProbeResult is the reply to NewProbe.
type ProbeResult struct {
	RequestID uuid.UUID
	Outcome   models.ProbeOutcome
}
