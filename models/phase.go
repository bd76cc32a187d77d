package models

import "time"

// PhaseStatus is the outcome of one load phase
type PhaseStatus string

const (
	PhaseOK      PhaseStatus = "ok"
	PhaseSkipped PhaseStatus = "skipped"
	PhaseFailed  PhaseStatus = "failed"
)

// PhaseResult records what a phase wrote and what it had to skip.
// A skipped phase was rolled back on an integrity violation and the run continued.
type PhaseResult struct {
	Phase   string
	Status  PhaseStatus
	Rows    int
	Skipped int
	Reason  string
	Err     error
	Elapsed time.Duration
}

// LoadReport is the ordered list of phase results of one loader run
type LoadReport struct {
	Phases []PhaseResult
}

// Add appends a phase result
func (r *LoadReport) Add(p PhaseResult) {
	r.Phases = append(r.Phases, p)
}

// Phase returns the result of the named phase, if it ran
func (r *LoadReport) Phase(name string) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Phase == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// Failed reports whether any phase ended in a non-integrity failure
func (r *LoadReport) Failed() bool {
	for _, p := range r.Phases {
		if p.Status == PhaseFailed {
			return true
		}
	}
	return false
}
