package contracts

import "fmt"

// StatusKind tags a WorkerStatus.
type StatusKind int

const (
	// StatusUnknown means no observation has been made, a restart is pending,
	// or the backend could not be reached.
	StatusUnknown StatusKind = iota
	// StatusRunning means the worker is alive.
	StatusRunning
	// StatusFailed means the worker is known to be down; Reason says why.
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusUnknown:
		return "unknown"
	case StatusRunning:
		return "running"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// ParseStatusKind is the inverse of StatusKind.String.
func ParseStatusKind(s string) StatusKind {
	switch s {
	case "running":
		return StatusRunning
	case "failed":
		return StatusFailed
	}
	return StatusUnknown
}

// WorkerStatus is the observed state of the supervised worker.
type WorkerStatus struct {
	Kind   StatusKind
	Reason string // diagnostic, only meaningful when Kind is StatusFailed
}

// Unknown returns the Unknown status.
func Unknown() WorkerStatus { return WorkerStatus{Kind: StatusUnknown} }

// Running returns the Running status.
func Running() WorkerStatus { return WorkerStatus{Kind: StatusRunning} }

// Failed returns a Failed status carrying reason verbatim.
func Failed(reason string) WorkerStatus { return WorkerStatus{Kind: StatusFailed, Reason: reason} }

// StatusFromDiagnostic maps the wire form (nil = running, string = failed) to a status.
func StatusFromDiagnostic(diag *string) WorkerStatus {
	if diag == nil {
		return Running()
	}
	return Failed(*diag)
}

// Diagnostic returns the wire form of the status: nil unless failed.
func (s WorkerStatus) Diagnostic() *string {
	if s.Kind != StatusFailed {
		return nil
	}
	r := s.Reason
	return &r
}

func (s WorkerStatus) String() string {
	if s.Kind == StatusFailed {
		return fmt.Sprintf("failed: %s", s.Reason)
	}
	return s.Kind.String()
}

// Display is what a front-end shows for a status. Exactly one applies.
type Display int

const (
	DisplayLoading Display = iota
	DisplayRunning
	DisplayFailed
)

// Display maps the status to the single indicator a front-end renders.
func (s WorkerStatus) Display() Display {
	switch s.Kind {
	case StatusRunning:
		return DisplayRunning
	case StatusFailed:
		return DisplayFailed
	}
	return DisplayLoading
}
