package pipeline

// FatalError ends a run. Reason is stored on the failed run.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string { return "pipeline: run failed: " + e.Reason }

func (e *FatalError) Unwrap() error { return e.Err }
