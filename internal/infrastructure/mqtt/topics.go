package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "smarthouse"

// Topics builds the topic hierarchy under a common prefix:
//
//	{prefix}/state/switch/{id}          retained switch snapshot
//	{prefix}/command/switch/{id}        switch commands
//	{prefix}/state/thermometer/{id}     temperature samples
//	{prefix}/system/status              online/offline status (LWT)
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

// NewTopics returns builders rooted at prefix. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.TrimRight(prefix, "/")}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

func (t Topics) join(parts ...string) string {
	return t.prefix() + "/" + strings.Join(parts, "/")
}

// SwitchState returns the retained state topic of a power switch.
//
// Example: smarthouse/state/switch/bathroom
func (t Topics) SwitchState(id string) string {
	return t.join("state", "switch", id)
}

// SwitchCommand returns the command topic of a power switch.
//
// Example: smarthouse/command/switch/bathroom
func (t Topics) SwitchCommand(id string) string {
	return t.join("command", "switch", id)
}

// ThermometerState returns the temperature topic of a thermometer.
//
// Example: smarthouse/state/thermometer/living-room
func (t Topics) ThermometerState(id string) string {
	return t.join("state", "thermometer", id)
}

// SystemStatus returns the online/offline status topic.
func (t Topics) SystemStatus() string {
	return t.join("system", "status")
}

// AllSwitchStates matches every switch state topic.
func (t Topics) AllSwitchStates() string {
	return t.join("state", "switch", "+")
}

// AllThermometerStates matches every thermometer topic.
func (t Topics) AllThermometerStates() string {
	return t.join("state", "thermometer", "+")
}

// All matches every topic under the prefix.
func (t Topics) All() string {
	return t.prefix() + "/#"
}

// DeviceID returns the last level of a concrete topic, which for every
// device topic is the device id.
func DeviceID(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
