package orchestrator

import (
	"veritas-client/backend"
	"veritas-client/llm"
)

// Phase is the orchestrator state
type Phase int

const (
	Idle Phase = iota
	InFlight
	Completed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case InFlight:
		return "in flight"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Status is a snapshot delivered to OnStatus observers.
// Result is set only for a completed verification, Err only when Failed.
// Stopped marks a chat reply aborted by the user.
type Status struct {
	Phase     Phase
	Operation backend.Operation
	Result    *llm.VerificationResult
	Err       *AnalysisError
	Stopped   bool
}

// Busy reports whether a request is outstanding
func (s Status) Busy() bool {
	switch s.Phase {
	case InFlight:
		return true
	case Idle, Completed, Failed:
		return false
	}
	return false
}
