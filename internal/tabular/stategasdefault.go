package tabular

import (
	"go.uber.org/zap"
)

// stateGasDefault is one row of state_gas_defaults.json: the dominant LDC
// for a state, used only when every other gas source misses.
type stateGasDefault struct {
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
}

// StateGasDefaults resolves a last-resort statewide gas LDC.
type StateGasDefaults struct {
	data map[string]stateGasDefault
}

// NewStateGasDefaults loads the state gas defaults table.
func NewStateGasDefaults(path string) (*StateGasDefaults, error) {
	s := &StateGasDefaults{data: make(map[string]stateGasDefault)}
	if err := loadJSON(path, "state_gas_defaults", &s.data); err != nil {
		return nil, err
	}
	if len(s.data) > 0 {
		zap.L().Info("state gas defaults loaded", zap.Int("states", len(s.data)))
	}
	return s, nil
}

// Loaded reports whether the table has data.
func (s *StateGasDefaults) Loaded() bool { return len(s.data) > 0 }

// Lookup returns the statewide default LDC. Confidence comes from the
// table (how dominant the LDC is in that state) and defaults to 0.45.
func (s *StateGasDefaults) Lookup(state string) *Result {
	entry, ok := s.data[upperState(state)]
	if !ok || entry.Provider == "" {
		return nil
	}
	confidence := entry.Confidence
	if confidence == 0 {
		confidence = 0.45
	}
	return &Result{
		Name:       entry.Provider,
		Source:     "state_gas_default",
		Confidence: confidence,
		State:      upperState(state),
	}
}
