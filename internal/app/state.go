// Package app manages one analysis session over a container file: locating
// raw data, running the pipeline, saving results and calibrating.
package app

import (
	"errors"
	"fmt"
	"path"
	"sync"

	"trefm-analyzer/internal/metrics"
	"trefm-analyzer/internal/params"
	"trefm-analyzer/internal/store"
)

// DefaultRawDataset is the dataset searched for when no explicit path is
// given.
const DefaultRawDataset = "FF_Raw"

// ErrNoFile is returned by operations that need an open container.
var ErrNoFile = errors.New("app: no file open")

// State holds the session state: the open container, the raw dataset being
// analysed and its parameters.
type State struct {
	mu sync.RWMutex

	file      *store.File
	closeFile func() error

	// Raw data
	RawPath string
	params  params.Parameters

	// Optional; nil disables metrics
	Metrics *metrics.Metrics

	// Event listeners
	listeners map[EventType][]EventListener
}

// EventType identifies different session events.
type EventType int

const (
	EventParamsLoaded       EventType = iota // data: params.Parameters
	EventRowProcessed                        // data: pipeline.RowEvent
	EventProcessingComplete                  // data: *pipeline.Output
	EventResultsSaved                        // data: *Results
	EventCalibrationSaved                    // data: *calibration.TransferFunction
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState creates a new session state.
func NewState() *State {
	return &State{
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
// EventRowProcessed listeners run on the pipeline's observer goroutine.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Open attaches the session to a container, closing any previous one.
func (s *State) Open(src store.Source) error {
	f, closeFn, err := store.OpenSource(src)
	if err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		closeFn()
		return err
	}

	s.mu.Lock()
	s.file = f
	s.closeFile = closeFn
	s.mu.Unlock()
	return nil
}

// Close releases the container if the session opened it.
func (s *State) Close() error {
	s.mu.Lock()
	closeFn := s.closeFile
	s.file, s.closeFile = nil, nil
	s.RawPath = ""
	s.params = params.Parameters{}
	s.mu.Unlock()

	if closeFn == nil {
		return nil
	}
	return closeFn()
}

// File returns the open container.
func (s *State) File() (*store.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file == nil {
		return nil, ErrNoFile
	}
	return s.file, nil
}

// Parameters returns the parameters of the located raw dataset.
func (s *State) Parameters() params.Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// LocateRaw selects the raw dataset to analyse. An explicit path ref wins;
// otherwise the last dataset called ds (DefaultRawDataset when empty) in
// path order is used. Parameters are read from the dataset's attributes;
// when those carry no trigger the parent group's attributes are merged
// underneath.
func (s *State) LocateRaw(ref, ds string) (string, error) {
	f, err := s.File()
	if err != nil {
		return "", err
	}

	p := ref
	if p == "" {
		if ds == "" {
			ds = DefaultRawDataset
		}
		found, err := f.Find(ds)
		if err != nil {
			return "", err
		}
		if len(found) == 0 {
			return "", fmt.Errorf("no dataset named %s in %s: %w", ds, f.Filename(), store.ErrNotFound)
		}
		p = found[len(found)-1]
	}

	info, err := f.Info(p)
	if err != nil {
		return "", err
	}
	if info.Kind != store.KindDataset {
		return "", fmt.Errorf("%s is a group, not a raw dataset", info.Path)
	}

	parms, err := datasetParams(f, info.Path)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.RawPath = info.Path
	s.params = parms
	s.mu.Unlock()

	s.Emit(EventParamsLoaded, parms)
	return info.Path, nil
}

func datasetParams(f *store.File, p string) (params.Parameters, error) {
	attrs, err := f.Attrs(p)
	if err != nil {
		return params.Parameters{}, err
	}
	parms := params.FromAttributes(attrs)
	if parms.Has(params.KeyTrigger) || parms.Has(params.KeyTriggerSample) {
		return parms, nil
	}

	parent, err := f.Attrs(path.Dir(p))
	if err != nil {
		return params.Parameters{}, err
	}
	return params.FromAttributes(parent).Merge(parms), nil
}
