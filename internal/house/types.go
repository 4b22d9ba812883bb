package house

import (
	"fmt"
	"time"
)

// DeviceKind identifies how a device is reached.
type DeviceKind string

const (
	// KindSwitch is a power switch reached over the TCP switch protocol.
	KindSwitch DeviceKind = "switch"

	// KindThermometer is a thermometer streaming UDP samples.
	KindThermometer DeviceKind = "thermometer"
)

// ValidKinds lists the supported device kinds.
var ValidKinds = []DeviceKind{KindSwitch, KindThermometer}

// ValidateKind checks that k is a supported kind.
func ValidateKind(k DeviceKind) error {
	for _, v := range ValidKinds {
		if k == v {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidKind, k)
}

// RoomRecord is a persisted room.
type RoomRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

// DeviceRecord is a persisted device and how to reach it.
type DeviceRecord struct {
	ID     string     `json:"id"`
	RoomID string     `json:"room_id"`
	Name   string     `json:"name"`
	Kind   DeviceKind `json:"kind"`

	// Description is shown in switch status lines.
	Description string `json:"description,omitempty"`

	// Address is the switch server address (switches only).
	Address string `json:"address,omitempty"`

	// ListenAddress and PeerAddress configure the telemetry receiver
	// (thermometers only).
	ListenAddress string `json:"listen_address,omitempty"`
	PeerAddress   string `json:"peer_address,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields required for the device kind.
func (d *DeviceRecord) Validate() error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateKind(d.Kind); err != nil {
		return err
	}
	switch d.Kind {
	case KindSwitch:
		if d.Address == "" {
			return fmt.Errorf("%w: switch %q needs an address", ErrInvalidEndpoint, d.Name)
		}
	case KindThermometer:
		if d.ListenAddress == "" || d.PeerAddress == "" {
			return fmt.Errorf("%w: thermometer %q needs listen and peer addresses", ErrInvalidEndpoint, d.Name)
		}
	}
	return nil
}
