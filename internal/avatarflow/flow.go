// Package avatarflow drives the avatar-upload modal: file selection, a
// simulated processing delay, preview, and confirm/back/cancel. It is a small
// finite state machine with an explicit transition table.
package avatarflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of the modal.
type State string

const (
	// StateIdle is the default view. A file may already be selected (after
	// Back) or not.
	StateIdle State = "Idle"
	// StateLoading runs the processing delay after a file is picked.
	StateLoading State = "Loading"
	// StatePreview shows the selected file at compact dimensions.
	StatePreview State = "Preview"
)

type event string

const (
	eventSelectFile event = "SelectFile"
	eventProcessed  event = "Processed"
	eventSave       event = "Save"
	eventBack       event = "Back"
	eventCancel     event = "Cancel"
)

// transitions is the single source of truth for which event is legal in which
// state, and where it leads.
var transitions = map[State]map[event]State{
	StateIdle: {
		eventSelectFile: StateLoading,
		eventCancel:     StateIdle,
	},
	StateLoading: {
		eventProcessed: StatePreview,
		eventCancel:    StateIdle,
	},
	StatePreview: {
		eventSave:   StateIdle,
		eventBack:   StateIdle,
		eventCancel: StateIdle,
	},
}

// ErrInvalidTransition is returned when an event is not legal in the current
// state, e.g. Save before the preview is ready.
var ErrInvalidTransition = errors.New("invalid transition")

// Dimensions of the presentation surface.
type Dimensions struct {
	Width  int
	Height int
}

var (
	DefaultDimensions = Dimensions{Width: 400, Height: 570}
	PreviewDimensions = Dimensions{Width: 400, Height: 370}
)

// SelectedFile is the locally picked avatar.
type SelectedFile struct {
	Name string
	Data []byte
}

// SaveFunc performs the profile update with the selected file.
type SaveFunc func(ctx context.Context, file SelectedFile) error

// Notifier surfaces transient outcome messages (the toast analogue).
type Notifier interface {
	Success(message string)
	Error(message string)
}

// Config wires the flow's collaborators.
type Config struct {
	// ProcessingDelay simulates client-side processing between selection and
	// preview.
	ProcessingDelay time.Duration
	Save            SaveFunc
	Notifier        Notifier
	// ReleaseFile frees the local preview resource (object-URL analogue).
	// Called when a selected file stops being used: on cancel, on successful
	// save, and when a new selection replaces it. Optional.
	ReleaseFile func(SelectedFile)
}

// Flow is safe for concurrent use; the internal timer fires on its own
// goroutine, so a lock is necessary.
type Flow struct {
	mu     sync.Mutex
	cfg    Config
	state  State
	dims   Dimensions
	file   *SelectedFile
	closed bool

	timer *time.Timer
	// gen invalidates a pending timer after cancel: a stale fire must not
	// push a reopened modal into Preview.
	gen int
}

func New(cfg Config) *Flow {
	return &Flow{
		cfg:   cfg,
		state: StateIdle,
		dims:  DefaultDimensions,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) Dimensions() Dimensions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dims
}

// Selected returns the currently selected file, if any.
func (f *Flow) Selected() (SelectedFile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return SelectedFile{}, false
	}
	return *f.file, true
}

// Closed reports whether the modal has been dismissed.
func (f *Flow) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reopen resets a dismissed modal back to the default view. The previous
// selection does not survive a close.
func (f *Flow) Reopen() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = false
}

func (f *Flow) next(ev event) (State, error) {
	to, ok := transitions[f.state][ev]
	if !ok {
		return "", fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, ev, f.state)
	}
	return to, nil
}

// SelectFile enters Loading and schedules the transition to Preview after the
// processing delay.
func (f *Flow) SelectFile(name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	to, err := f.next(eventSelectFile)
	if err != nil {
		return err
	}

	f.releaseLocked()
	f.file = &SelectedFile{Name: name, Data: data}
	f.state = to

	f.gen++
	gen := f.gen
	f.timer = time.AfterFunc(f.cfg.ProcessingDelay, func() {
		f.processed(gen)
	})
	return nil
}

func (f *Flow) processed(gen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return // cancelled while the timer was pending
	}
	to, err := f.next(eventProcessed)
	if err != nil {
		return
	}
	f.state = to
	f.dims = PreviewDimensions
}

// Save confirms the preview. On success the modal notifies, resets and
// closes. On failure it notifies with the failure message and stays open in
// Preview so the user can retry or back out.
func (f *Flow) Save(ctx context.Context) error {
	f.mu.Lock()
	if _, err := f.next(eventSave); err != nil {
		f.mu.Unlock()
		return err
	}
	file := *f.file
	save := f.cfg.Save
	f.mu.Unlock()

	// The save call runs outside the lock; it is a network round trip.
	saveErr := save(ctx, file)

	f.mu.Lock()
	defer f.mu.Unlock()
	if saveErr != nil {
		if f.cfg.Notifier != nil {
			f.cfg.Notifier.Error("Update avatar failed: " + saveErr.Error())
		}
		return saveErr
	}

	if f.cfg.Notifier != nil {
		f.cfg.Notifier.Success("Update avatar successfully")
	}
	f.releaseLocked()
	f.file = nil
	f.state = StateIdle
	f.dims = DefaultDimensions
	f.closed = true
	return nil
}

// Back leaves the preview and returns to the default view at pre-preview
// dimensions. The selection is kept: the user backed out of confirming, not
// out of the file choice.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	to, err := f.next(eventBack)
	if err != nil {
		return err
	}
	f.state = to
	f.dims = DefaultDimensions
	return nil
}

// Cancel discards the selection, resets dimensions and closes the modal. A
// pending processing timer is stopped; the delay is cancellable.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}

	f.releaseLocked()
	f.file = nil
	f.state = StateIdle
	f.dims = DefaultDimensions
	f.closed = true
}

func (f *Flow) releaseLocked() {
	if f.file != nil && f.cfg.ReleaseFile != nil {
		f.cfg.ReleaseFile(*f.file)
	}
}
