package graph

// Progress is the run-time progress/cancellation sink consumed by Run, per
// spec §6. Update is called with the fraction of total work amount
// completed so far, before each op executes; returning false requests
// cancellation.
type Progress interface {
	Update(fraction float64) bool
}

// ProgressFunc adapts a plain function to Progress.
type ProgressFunc func(fraction float64) bool

func (f ProgressFunc) Update(fraction float64) bool { return f(fraction) }

// NoopProgress never cancels; useful when the caller doesn't need
// progress reporting.
var NoopProgress Progress = ProgressFunc(func(float64) bool { return true })
