package sweeper

import (
	"errors"
	"time"
)

// StepError records a failed sweep step.
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e StepError) Unwrap() error {
	return e.Err
}

// Report is the outcome of one sweep.
type Report struct {
	RunID           string
	StartedAt       time.Time
	Duration        time.Duration
	CommandsPurged  int64
	ResponsesPurged int64
	DevicesExpired  int64
	Failures        []StepError
}

func (r *Report) record(step string, err error) {
	if err != nil {
		r.Failures = append(r.Failures, StepError{Step: step, Err: err})
	}
}

func (r *Report) changed() bool {
	return r.CommandsPurged > 0 || r.ResponsesPurged > 0 || r.DevicesExpired > 0
}

// Err joins the step failures, or returns nil when every step succeeded.
func (r Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// reportSummary is the wire shape of a sweep summary event.
type reportSummary struct {
	RunID           string   `json:"run_id"`
	StartedAt       string   `json:"started_at"`
	DurationMS      int64    `json:"duration_ms"`
	CommandsPurged  int64    `json:"commands_purged"`
	ResponsesPurged int64    `json:"responses_purged"`
	DevicesExpired  int64    `json:"devices_expired"`
	FailedSteps     []string `json:"failed_steps,omitempty"`
}

func (r Report) summary() reportSummary {
	s := reportSummary{
		RunID:           r.RunID,
		StartedAt:       r.StartedAt.Format(time.RFC3339Nano),
		DurationMS:      r.Duration.Milliseconds(),
		CommandsPurged:  r.CommandsPurged,
		ResponsesPurged: r.ResponsesPurged,
		DevicesExpired:  r.DevicesExpired,
	}
	for _, f := range r.Failures {
		s.FailedSteps = append(s.FailedSteps, f.Step)
	}
	return s
}
