package pixel

import "fmt"

// InvalidTriggerError reports a trigger sample outside the averaged trace.
type InvalidTriggerError struct {
	Trigger int
	Length  int
}

func (e *InvalidTriggerError) Error() string {
	return fmt.Sprintf("pixel: trigger sample %d outside trace [0, %d)", e.Trigger, e.Length)
}

// AnalysisError reports a numeric failure analysing one pixel.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return "pixel analysis: " + e.Err.Error()
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

func analysisErrorf(format string, args ...any) error {
	return &AnalysisError{Err: fmt.Errorf(format, args...)}
}
