package sap

// Status tags how a best-effort step ended.
type Status int

const (
	StatusSuccess Status = iota
	// StatusDegraded means the step did not reach its goal but the run may continue.
	StatusDegraded
)

func (s Status) String() string {
	if s == StatusDegraded {
		return "degraded"
	}
	return "success"
}

// Outcome is the result of a step that may degrade without failing the run.
// Fatal conditions are returned as errors alongside it.
type Outcome struct {
	Status Status
	Reason string
}

func success() Outcome { return Outcome{Status: StatusSuccess} }

func degraded(reason string) Outcome { return Outcome{Status: StatusDegraded, Reason: reason} }

// Degraded reports whether the step fell short of its goal.
func (o Outcome) Degraded() bool { return o.Status == StatusDegraded }
