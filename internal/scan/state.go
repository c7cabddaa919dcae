package scan

import "sponsorcheck/internal/registry"

type Action int

const (
	ActionNone Action = iota
	ActionScan
	ActionClear
)

func (a Action) String() string {
	switch a {
	case ActionScan:
		return "scan"
	case ActionClear:
		return "clear"
	default:
		return "none"
	}
}

// State is everything the scan loop knows besides the document. Transitions
// return the action the loop has to perform next.
type State struct {
	Enabled    bool
	DataLoaded bool
	Registry   *registry.Registry
}

// NewState is the state before storage answers: enabled, nothing loaded.
func NewState() State {
	return State{Enabled: true}
}

func (s *State) Hydrated(enabled bool, reg *registry.Registry) Action {
	s.Enabled = enabled
	if reg.Loaded() {
		s.Registry = reg
		s.DataLoaded = true
	}
	return s.scanIfReady()
}

func (s *State) RegistryChanged(reg *registry.Registry) Action {
	s.Registry = reg
	s.DataLoaded = true
	return s.scanIfReady()
}

func (s *State) EnabledChanged(enabled bool) Action {
	s.Enabled = enabled
	if !enabled {
		return ActionClear
	}
	return s.scanIfReady()
}

func (s *State) Mutated() Action {
	return s.scanIfReady()
}

func (s *State) scanIfReady() Action {
	if s.DataLoaded && s.Enabled {
		return ActionScan
	}
	return ActionNone
}
