package powerswitch

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame sizes of the switch wire protocol.
const (
	// CommandSize is the encoded size of a Command.
	CommandSize = 1

	// ResponseSize is the encoded size of a Response: tag(1) + float64(8).
	ResponseSize = 9
)

// Command is an instruction sent to the switch.
type Command uint8

// Command codes. Any byte above CommandGetPower decodes to CommandUnknown.
const (
	CommandTurnOff   Command = 0
	CommandTurnOn    Command = 1
	CommandIsEnabled Command = 2
	CommandGetPower  Command = 3
	CommandUnknown   Command = 255
)

// DecodeCommand maps a wire byte to a Command. It never fails.
func DecodeCommand(b byte) Command {
	switch c := Command(b); c {
	case CommandTurnOff, CommandTurnOn, CommandIsEnabled, CommandGetPower:
		return c
	default:
		return CommandUnknown
	}
}

// Encode returns the wire byte for c. Values outside the known set encode
// as the Unknown code.
func (c Command) Encode() byte {
	switch c {
	case CommandTurnOff, CommandTurnOn, CommandIsEnabled, CommandGetPower:
		return byte(c)
	default:
		return byte(CommandUnknown)
	}
}

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CommandTurnOff:
		return "TurnOff"
	case CommandTurnOn:
		return "TurnOn"
	case CommandIsEnabled:
		return "IsEnabled"
	case CommandGetPower:
		return "GetPower"
	default:
		return "Unknown"
	}
}

// commandNames maps the snake_case names used on message bus payloads.
var commandNames = map[string]Command{
	"turn_off":   CommandTurnOff,
	"turn_on":    CommandTurnOn,
	"is_enabled": CommandIsEnabled,
	"get_power":  CommandGetPower,
}

// ParseCommandName resolves a snake_case command name such as "turn_on".
func ParseCommandName(name string) (Command, error) {
	c, ok := commandNames[name]
	if !ok {
		return CommandUnknown, fmt.Errorf("%w: %q", ErrUnknownCommandName, name)
	}
	return c, nil
}

// ResponseKind is the tag of a Response.
type ResponseKind uint8

// Response tags as they appear in byte 0 of the response frame.
const (
	ResponseOk       ResponseKind = 0
	ResponseEnabled  ResponseKind = 1
	ResponseDisabled ResponseKind = 2
	ResponsePower    ResponseKind = 3
	ResponseUnknown  ResponseKind = 255
)

// String returns the tag name.
func (k ResponseKind) String() string {
	switch k {
	case ResponseOk:
		return "Ok"
	case ResponseEnabled:
		return "Enabled"
	case ResponseDisabled:
		return "Disabled"
	case ResponsePower:
		return "Power"
	default:
		return "Unknown"
	}
}

// Response is the switch's reply to a Command.
// Power is only meaningful when Kind is ResponsePower.
type Response struct {
	Kind  ResponseKind
	Power float64
}

// Convenience constructors.
var (
	Ok       = Response{Kind: ResponseOk}
	Enabled  = Response{Kind: ResponseEnabled}
	Disabled = Response{Kind: ResponseDisabled}
	Unknown  = Response{Kind: ResponseUnknown}
)

// PowerResponse builds a Power response carrying watts.
func PowerResponse(watts float64) Response {
	return Response{Kind: ResponsePower, Power: watts}
}

// Encode encodes r into its 9-byte wire frame.
//
// Unrecognised kinds encode as the Unknown tag. The payload bytes are
// zero for every kind except Power.
func (r Response) Encode() [ResponseSize]byte {
	var frame [ResponseSize]byte
	switch r.Kind {
	case ResponseOk, ResponseEnabled, ResponseDisabled:
		frame[0] = byte(r.Kind)
	case ResponsePower:
		frame[0] = byte(ResponsePower)
		binary.BigEndian.PutUint64(frame[1:], math.Float64bits(r.Power))
	default:
		frame[0] = byte(ResponseUnknown)
	}
	return frame
}

// DecodeResponse decodes a 9-byte wire frame. It never fails: unknown tags
// yield the Unknown response and payload bytes are ignored unless the tag
// is Power.
func DecodeResponse(frame [ResponseSize]byte) Response {
	switch kind := ResponseKind(frame[0]); kind {
	case ResponseOk, ResponseEnabled, ResponseDisabled:
		return Response{Kind: kind}
	case ResponsePower:
		return PowerResponse(math.Float64frombits(binary.BigEndian.Uint64(frame[1:])))
	default:
		return Unknown
	}
}

// String renders r for logs and the interactive client.
func (r Response) String() string {
	if r.Kind == ResponsePower {
		return fmt.Sprintf("Power(%g)", r.Power)
	}
	return r.Kind.String()
}
