package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Field names shared by every component's log lines.
const (
	AgentNameField = "agent"
	ActorIDField   = "actor"
	RequestTaskID  = "probe_id"
	TargetField    = "target"
	StepField      = "step"
	ToolField      = "tool"
)

// NewGlobal configures the global zerolog logger. Pretty output goes to a
// console writer; otherwise lines are JSON on stderr.
func NewGlobal(level string, pretty bool) error {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	zerolog.SetGlobalLevel(l)
	zerolog.DurationFieldUnit = time.Millisecond

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}
