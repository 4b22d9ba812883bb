package powerswitch

import (
	"fmt"
	"strconv"
)

// State is the on/off flag of a switch.
type State uint8

// Switch states. The numeric values double as the configuration encoding
// of the initial state.
const (
	StateOff State = 0
	StateOn  State = 1
)

// ParseState converts a numeric initial state. Only 0 (Off) and 1 (On)
// are accepted.
func ParseState(v int) (State, error) {
	switch v {
	case int(StateOff):
		return StateOff, nil
	case int(StateOn):
		return StateOn, nil
	default:
		return StateOff, fmt.Errorf("%w: %d (want 0 or 1)", ErrInvalidState, v)
	}
}

// String returns "On" or "Off".
func (s State) String() string {
	if s == StateOn {
		return "On"
	}
	return "Off"
}

// MarshalText encodes the state as "On" or "Off".
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settings configures a new Switch.
type Settings struct {
	Description      string
	InitialState     int
	PowerConsumption float64
}

// Switch is the command-processing state machine of one power switch.
//
// Only the on/off flag changes after construction. Switch is not safe for
// concurrent use; wrap it in Shared.
type Switch struct {
	state            State
	description      string
	powerConsumption float64
	logger           Logger
}

// New creates a switch from settings.
//
// Returns ErrInvalidState if InitialState is not 0 or 1.
func New(s Settings) (*Switch, error) {
	state, err := ParseState(s.InitialState)
	if err != nil {
		return nil, err
	}
	return &Switch{
		state:            state,
		description:      s.Description,
		powerConsumption: s.PowerConsumption,
		logger:           noopLogger{},
	}, nil
}

// SetLogger sets the logger used for unknown-command diagnostics.
func (s *Switch) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Process applies cmd and returns the response.
//
//	TurnOn    -> state On,  Ok
//	TurnOff   -> state Off, Ok
//	IsEnabled -> Enabled or Disabled
//	GetPower  -> Power(consumption) when On, Power(0) when Off
//	Unknown   -> Unknown, logged
func (s *Switch) Process(cmd Command) Response {
	switch cmd {
	case CommandTurnOn:
		s.state = StateOn
		return Ok
	case CommandTurnOff:
		s.state = StateOff
		return Ok
	case CommandIsEnabled:
		if s.state == StateOn {
			return Enabled
		}
		return Disabled
	case CommandGetPower:
		return PowerResponse(s.Power())
	default:
		s.logger.Warn("unknown command received", "code", byte(cmd), "description", s.description)
		return Unknown
	}
}

// State returns the current on/off flag.
func (s *Switch) State() State { return s.state }

// Description returns the switch description.
func (s *Switch) Description() string { return s.description }

// PowerConsumption returns the configured consumption regardless of state.
func (s *Switch) PowerConsumption() float64 { return s.powerConsumption }

// Power returns the current draw: the configured consumption when On, 0 when Off.
func (s *Switch) Power() float64 {
	if s.state == StateOn {
		return s.powerConsumption
	}
	return 0
}

// Snapshot captures the observable switch fields.
func (s *Switch) Snapshot() Snapshot {
	return Snapshot{
		Description:      s.description,
		State:            s.state,
		PowerConsumption: s.powerConsumption,
		Power:            s.Power(),
	}
}

// String renders the device status line used in house reports.
func (s *Switch) String() string {
	return s.Snapshot().String()
}

// Snapshot is a point-in-time copy of a switch.
type Snapshot struct {
	Description      string  `json:"description"`
	State            State   `json:"state"`
	PowerConsumption float64 `json:"power_consumption"`
	Power            float64 `json:"power"`
}

// On reports whether the snapshot was taken while the switch was on.
func (s Snapshot) On() bool { return s.State == StateOn }

// String renders a status line such as
// `Power Switch (state: Off, description: "Bathroom", power consumption: 0)`.
func (s Snapshot) String() string {
	return fmt.Sprintf("Power Switch (state: %s, description: %s, power consumption: %s)",
		s.State, strconv.Quote(s.Description), strconv.FormatFloat(s.PowerConsumption, 'f', -1, 64))
}
