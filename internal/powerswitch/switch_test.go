package powerswitch

import (
	"encoding/json"
	"errors"
	"testing"
)

func newTestSwitch(t *testing.T, initial int, consumption float64) *Switch {
	t.Helper()
	sw, err := New(Settings{Description: "Bathroom", InitialState: initial, PowerConsumption: consumption})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return sw
}

func TestParseState(t *testing.T) {
	tests := []struct {
		in      int
		want    State
		wantErr bool
	}{
		{0, StateOff, false},
		{1, StateOn, false},
		{2, StateOff, true},
		{-1, StateOff, true},
		{255, StateOff, true},
	}

	for _, tt := range tests {
		got, err := ParseState(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidState) {
				t.Errorf("ParseState(%d) error = %v, want ErrInvalidState", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseState(%d) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestNew_RejectsInvalidInitialState(t *testing.T) {
	if _, err := New(Settings{InitialState: 7}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("New() error = %v, want ErrInvalidState", err)
	}
}

func TestSwitch_Process(t *testing.T) {
	sw := newTestSwitch(t, 0, 42.5)

	steps := []struct {
		cmd  Command
		want Response
	}{
		{CommandGetPower, PowerResponse(0)},
		{CommandIsEnabled, Disabled},
		{CommandTurnOn, Ok},
		{CommandGetPower, PowerResponse(42.5)},
		{CommandIsEnabled, Enabled},
		{CommandTurnOn, Ok},
		{CommandTurnOff, Ok},
		{CommandIsEnabled, Disabled},
		{CommandGetPower, PowerResponse(0)},
		{CommandUnknown, Unknown},
	}

	for i, s := range steps {
		if got := sw.Process(s.cmd); got != s.want {
			t.Errorf("step %d: Process(%v) = %v, want %v", i, s.cmd, got, s.want)
		}
	}

	if got := sw.PowerConsumption(); got != 42.5 {
		t.Errorf("PowerConsumption() = %v, want 42.5", got)
	}
}

type recordingLogger struct {
	noopLogger
	warnings []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) { l.warnings = append(l.warnings, msg) }

func TestSwitch_UnknownCommandLogged(t *testing.T) {
	sw := newTestSwitch(t, 1, 5)
	log := &recordingLogger{}
	sw.SetLogger(log)

	sw.Process(DecodeCommand(99))

	if len(log.warnings) != 1 {
		t.Fatalf("warnings = %v, want one", log.warnings)
	}
	if sw.State() != StateOn {
		t.Errorf("State() = %v, want On after unknown command", sw.State())
	}
}

func TestSwitch_String(t *testing.T) {
	sw := newTestSwitch(t, 0, 0)
	want := `Power Switch (state: Off, description: "Bathroom", power consumption: 0)`
	if got := sw.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	on := newTestSwitch(t, 1, 1500.5)
	want = `Power Switch (state: On, description: "Bathroom", power consumption: 1500.5)`
	if got := on.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestSnapshot_JSON(t *testing.T) {
	snap := newTestSwitch(t, 1, 60).Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"description":"Bathroom","state":"On","power_consumption":60,"power":60}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestShared_ProcessReportsChange(t *testing.T) {
	shared := NewShared(newTestSwitch(t, 0, 10))

	if _, changed := shared.Process(CommandIsEnabled); changed {
		t.Error("IsEnabled reported a change")
	}
	if _, changed := shared.Process(CommandTurnOn); !changed {
		t.Error("TurnOn from Off did not report a change")
	}
	if _, changed := shared.Process(CommandTurnOn); changed {
		t.Error("TurnOn while On reported a change")
	}
	if got := shared.Snapshot(); !got.On() || got.Power != 10 {
		t.Errorf("Snapshot() = %+v", got)
	}
}
