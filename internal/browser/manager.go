package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Manager owns the lifecycle of the current browser session + extractor
// pair, recycling it on a fixed cadence (spec §4.4: "Recycle after
// processing N = 2000 snapshots since the last reset") and on recoverable
// browser errors, before the caller retries the current archive ID once.
//
// There is exactly one Manager per pipeline and it is never accessed
// concurrently (spec §5: "The browser session is owned by the CRP and
// never concurrently accessed").
type Manager struct {
	factory Factory
	current *Handle
}

// NewManager builds a Manager around a Handle factory. No session is
// created until the first Current call.
func NewManager(factory Factory) *Manager {
	return &Manager{factory: factory}
}

// Current returns the live handle, creating one on first use.
func (m *Manager) Current(ctx context.Context) (*Handle, error) {
	if m.current == nil {
		return m.Recycle(ctx)
	}
	return m.current, nil
}

// Recycle tears down the current handle (if any) and builds a fresh one,
// logging the transition the way the teacher's long-lived resources do.
func (m *Manager) Recycle(ctx context.Context) (*Handle, error) {
	if m.current != nil {
		if err := m.current.Close(ctx); err != nil {
			log.Printf("browser: error closing previous session: %v", err)
		}
		m.current = nil
	}

	h, err := m.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("build browser session: %w", err)
	}
	m.current = h
	return h, nil
}

// Close tears down whatever session is currently held. Safe to call
// multiple times and on every exit path, including after a panic recovers
// further up the call stack (spec §9: "the browser session is scoped
// acquisition (release on every exit path, including panic/exception)").
func (m *Manager) Close(ctx context.Context) error {
	if m.current == nil {
		return nil
	}
	err := m.current.Close(ctx)
	m.current = nil
	return err
}

// IsRecoverable reports whether err represents a browser/driver failure
// that the pipeline should recover from by recycling the session and
// retrying the current archive ID once (spec §4.5, §7), as opposed to a
// terminal snapshot status or a rate-limit signal.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrBrowserTimeout) || errors.Is(err, ErrDriverFailure)
}
