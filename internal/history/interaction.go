package history

import (
	"time"

	"github.com/google/uuid"
)

// Interaction is the telemetry record for one trigger-to-delivery cycle.
// Pointer fields stay NULL in the database for stages the session never
// reached; an aborted take is distinguishable from an empty result.
type Interaction struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time

	AudioDevice    *string
	AudioDurationS *float64

	TranscriptionText      *string
	TranscriptionModel     *string
	TranscriptionDurationS *float64

	CorrectionText      *string
	CorrectionChanged   *bool
	CorrectionDurationS *float64
	CorrectionError     *string

	Intent      *string
	Profile     *string
	Trigger     *string
	RouteSource *string
	RoutedText  *string

	Response           *string
	ExecutionDurationS *float64

	OutputDelivered *bool

	Completed    bool
	ErrorSummary *string
}

// Begin opens a new interaction record for a session starting now.
func Begin() *Interaction {
	return &Interaction{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
}

// SetAudio records capture stage results.
func (i *Interaction) SetAudio(device string, duration time.Duration) {
	i.AudioDevice = &device
	i.AudioDurationS = secondsPtr(duration)
}

// SetTranscription records transcription stage results.
func (i *Interaction) SetTranscription(text, model string, elapsed time.Duration) {
	i.TranscriptionText = &text
	i.TranscriptionModel = &model
	i.TranscriptionDurationS = secondsPtr(elapsed)
}

// SetCorrection records correction stage results. A non-nil err is a
// degradation, not a failure: the session continued with the text recorded
// here, but the cause stays visible in telemetry.
func (i *Interaction) SetCorrection(text string, changed bool, elapsed time.Duration, err error) {
	i.CorrectionText = &text
	i.CorrectionChanged = &changed
	i.CorrectionDurationS = secondsPtr(elapsed)
	if err != nil {
		summary := err.Error()
		i.CorrectionError = &summary
	}
}

// SetRoute records the routing decision.
func (i *Interaction) SetRoute(intent, profile, trigger, source, routedText string) {
	i.Intent = &intent
	i.RoutedText = &routedText
	i.RouteSource = &source
	if profile != "" {
		i.Profile = &profile
	}
	if trigger != "" {
		i.Trigger = &trigger
	}
}

// SetExecution records the executor response, including a partial response
// retained from a timed-out run.
func (i *Interaction) SetExecution(response string, elapsed time.Duration) {
	i.Response = &response
	i.ExecutionDurationS = secondsPtr(elapsed)
}

// SetDelivered records whether output reached the clipboard.
func (i *Interaction) SetDelivered(delivered bool) {
	i.OutputDelivered = &delivered
}

// Fail marks the interaction as not completed with a terse cause.
func (i *Interaction) Fail(summary string) {
	i.Completed = false
	i.ErrorSummary = &summary
}

// Finish marks the interaction as fully completed.
func (i *Interaction) Finish() {
	i.Completed = true
}

func secondsPtr(d time.Duration) *float64 {
	s := d.Seconds()
	return &s
}
