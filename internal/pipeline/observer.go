package pipeline

import (
	"log"
	"time"

	"trefm-analyzer/internal/imagemap"
)

// RowEvent reports one finished row. The slices are copies owned by the
// receiver.
type RowEvent struct {
	Index   int
	TFP     []float64 // Seconds, nil if the row failed
	Shift   []float64 // Hz, nil if the row failed
	Failed  []int     // Columns that fell back to NaN
	Err     error     // Set when the whole row failed
	Done    int       // Rows finished so far, including this one
	Total   int
	Elapsed time.Duration
}

// Observer receives row events. Calls are made from a single goroutine, in
// completion order, never concurrently.
type Observer interface {
	RowDone(RowEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(RowEvent)

// RowDone calls f.
func (f ObserverFunc) RowDone(ev RowEvent) { f(ev) }

// Observers fans events out to several observers in order.
type Observers []Observer

// RowDone forwards ev to every observer.
func (o Observers) RowDone(ev RowEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.RowDone(ev)
		}
	}
}

// LogObserver logs per-row tFP statistics. Failed rows are already logged
// by Process.
type LogObserver struct{}

// RowDone logs ev.
func (LogObserver) RowDone(ev RowEvent) {
	if ev.Err != nil {
		return
	}
	mean, std := imagemap.Stats(ev.TFP)
	log.Printf("Line %d: average tFP (us) = %.2f +/- %.2f (%d/%d, %d failed pixels, %v)",
		ev.Index, mean*1e6, std*1e6, ev.Done, ev.Total, len(ev.Failed), ev.Elapsed.Round(time.Millisecond))
}
