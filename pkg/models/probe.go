package models

// Terminal reasons produced by the session itself.
const (
	ReasonMaxSteps          = "max-steps-exceeded"
	ReasonScreenshotFailed  = "screenshot-capture-failed"
	ReasonUnknownTool       = "unknown-tool"
	ReasonInvalidArguments  = "invalid-arguments"
	ReasonNoToolCall        = "no-tool-call"
	ReasonModelError        = "model-error"
	ReasonInvalidTarget     = "invalid-target"
	ReasonSessionTimeout    = "session-timeout"
	ReasonSessionPanic      = "session-panic"
	ReasonShuttingDown      = "shutting-down"
	ReasonDefaultFinish     = "done"
	ReasonScreenshotCapture = "screenshot captured"
)

type ToolInvocation struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Arg returns a string argument, or "" when absent or not a string.
func (t ToolInvocation) Arg(key string) string {
	v, ok := t.Arguments[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

type ToolOutcome struct {
	InvocationID string `json:"invocation_id"`
	Result       any    `json:"raw_result,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (o ToolOutcome) Failed() bool {
	return o.Error != ""
}

// ResultMap returns the result as a JSON object when it is one.
func (o ToolOutcome) ResultMap() (map[string]any, bool) {
	m, ok := o.Result.(map[string]any)
	return m, ok
}

type StepLog struct {
	StepIndex     int            `json:"step_index"`
	ToolName      string         `json:"tool_name,omitempty"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	ResultSummary string         `json:"result_summary,omitempty"`
	Error         string         `json:"error,omitempty"`
}

type ProbeOutcome struct {
	TargetURL      string    `json:"target_url"`
	Status         Status    `json:"status"`
	Reason         string    `json:"reason"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	DOMExcerpt     string    `json:"dom_excerpt,omitempty"`
	OCRText        string    `json:"ocr_text,omitempty"`
	WellnessReport string    `json:"wellness_report,omitempty"`
	Steps          []StepLog `json:"steps"`
}

// Failed builds a terminal failed outcome carrying no evidence.
func Failed(target, reason string) ProbeOutcome {
	return ProbeOutcome{TargetURL: target, Status: StatusFailed, Reason: reason, Steps: []StepLog{}}
}

type SummaryEntry struct {
	TargetURL      string `json:"target_url"`
	Status         Status `json:"status"`
	Reason         string `json:"reason"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
}

type BatchResult struct {
	Summary []SummaryEntry `json:"summary"`
	Details []ProbeOutcome `json:"details"`
}

// NewBatchResult derives the summary from the details, keeping their order.
func NewBatchResult(details []ProbeOutcome) BatchResult {
	res := BatchResult{
		Summary: make([]SummaryEntry, 0, len(details)),
		Details: details,
	}
	if res.Details == nil {
		res.Details = []ProbeOutcome{}
	}
	for _, d := range details {
		res.Summary = append(res.Summary, SummaryEntry{
			TargetURL:      d.TargetURL,
			Status:         d.Status,
			Reason:         d.Reason,
			ScreenshotPath: d.ScreenshotPath,
		})
	}
	return res
}

// AllOK reports whether every probe in the batch succeeded.
func (b BatchResult) AllOK() bool {
	for _, s := range b.Summary {
		if s.Status != StatusOK {
			return false
		}
	}
	return true
}
