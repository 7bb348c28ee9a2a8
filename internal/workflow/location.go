package workflow

import (
	"fmt"
	"strings"

	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services"
)

// SetLocation selects where items will be created. It is only allowed
// before capture starts; call Reset to change location afterwards.
func (m *Machine) SetLocation(loc scan.Location) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if err := m.requireLocked("SetLocation", scan.StatusNoLocation, scan.StatusLocationSelected); err != nil {
		return err
	}
	loc.ID = strings.TrimSpace(loc.ID)
	if loc.ID == "" {
		return services.Wrap(services.ErrValidation, "location", "SetLocation", "location id required", nil)
	}
	if loc.Name = strings.TrimSpace(loc.Name); loc.Name == "" {
		loc.Name = loc.ID
	}
	m.state.Location = &loc
	m.state.Parent = nil
	m.setStatusLocked(scan.StatusLocationSelected)
	m.commitLocked()
	return nil
}

// SetParentItem nests new items under an existing inventory item.
func (m *Machine) SetParentItem(parent scan.ParentItem) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if err := m.parentEditableLocked("SetParentItem"); err != nil {
		return err
	}
	if parent.ID = strings.TrimSpace(parent.ID); parent.ID == "" {
		return services.Wrap(services.ErrValidation, "location", "SetParentItem", "parent item id required", nil)
	}
	m.state.Parent = &parent
	m.commitLocked()
	return nil
}

// ClearParentItem creates new items directly in the location again.
func (m *Machine) ClearParentItem() error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if err := m.parentEditableLocked("ClearParentItem"); err != nil {
		return err
	}
	m.state.Parent = nil
	m.commitLocked()
	return nil
}

func (m *Machine) parentEditableLocked(op string) error {
	if m.state.Location == nil {
		return fmt.Errorf("%w: %s requires a location", ErrInvalidTransition, op)
	}
	if m.state.Status == scan.StatusSubmitting {
		return fmt.Errorf("%w: %s not allowed while submitting", ErrInvalidTransition, op)
	}
	return nil
}

// StartNew begins another scan in the same location. Capture, review and
// submission state is discarded and the snapshot is cleared.
func (m *Machine) StartNew() error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if m.state.Status == scan.StatusSubmitting {
		return fmt.Errorf("%w: StartNew not allowed while submitting", ErrInvalidTransition)
	}
	location, parent := m.state.Location, m.state.Parent
	if location == nil {
		m.resetLocked(scan.StatusNoLocation)
	} else {
		m.resetLocked(scan.StatusLocationSelected)
		m.state.Location = location
		m.state.Parent = parent
	}
	m.commitLocked()
	return nil
}

// Reset discards everything including the location and clears the snapshot.
func (m *Machine) Reset() error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if m.state.Status == scan.StatusSubmitting {
		return fmt.Errorf("%w: Reset not allowed while submitting", ErrInvalidTransition)
	}
	m.resetLocked(scan.StatusNoLocation)
	m.commitLocked()
	return nil
}

// resetLocked empties the state, moves to status and invalidates in-flight
// analysis results.
func (m *Machine) resetLocked(status scan.Status) {
	m.generation++
	m.sessionID = scan.NewID()
	m.engine.Reset()
	m.state = scan.State{Status: m.state.Status}
	m.setStatusLocked(status)
}
