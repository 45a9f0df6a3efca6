package models

// Status is the terminal verdict of a probe.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// ParseStatus maps a model supplied status onto a Status. Empty means ok,
// anything other than ok is treated as a failure.
func ParseStatus(s string) Status {
	switch s {
	case "", "ok", "OK", "Ok", "healthy", "success":
		return StatusOK
	default:
		return StatusFailed
	}
}
