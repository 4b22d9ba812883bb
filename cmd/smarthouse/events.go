package main

import (
	"time"

	"github.com/nerrad567/smarthouse-core/internal/api"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smarthouse-core/internal/powerswitch"
)

// temperatureEvent is the payload of a thermometer state message.
type temperatureEvent struct {
	DeviceID    string    `json:"device_id"`
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// switchStateEvent is the payload of a switch state message.
type switchStateEvent struct {
	DeviceID string `json:"device_id"`
	powerswitch.Snapshot
	Timestamp time.Time `json:"timestamp"`
}

// sinks are the optional destinations of device events. Any of them may
// be nil.
type sinks struct {
	mqtt   *mqtt.Client
	influx *influxdb.Client
	hub    *api.Hub
	log    *logging.Logger

	now func() time.Time
}

func (s *sinks) timestamp() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// temperature returns a sample callback for the thermometer id.
func (s *sinks) temperature(id string) func(float64) {
	return func(celsius float64) {
		ev := temperatureEvent{DeviceID: id, Temperature: celsius, Timestamp: s.timestamp()}
		if s.mqtt != nil {
			if err := s.mqtt.PublishJSON(s.mqtt.Topics().ThermometerState(id), ev, false); err != nil {
				s.log.Warn("publishing temperature failed", "device_id", id, "error", err)
			}
		}
		if s.influx != nil {
			s.influx.WriteTemperature(id, celsius, ev.Timestamp)
		}
		if s.hub != nil {
			s.hub.Broadcast(api.ChannelTemperatureUpdated, ev)
		}
	}
}

// switchState returns a state-change callback for the switch id. Switch
// state is published retained so late subscribers see the current state.
func (s *sinks) switchState(id string) func(powerswitch.Snapshot) {
	return func(snap powerswitch.Snapshot) {
		ev := switchStateEvent{DeviceID: id, Snapshot: snap, Timestamp: s.timestamp()}
		if s.mqtt != nil {
			if err := s.mqtt.PublishJSON(s.mqtt.Topics().SwitchState(id), ev, true); err != nil {
				s.log.Warn("publishing switch state failed", "device_id", id, "error", err)
			}
		}
		if s.influx != nil {
			s.influx.WriteSwitchPower(id, snap.Power, snap.On(), ev.Timestamp)
		}
		if s.hub != nil {
			s.hub.Broadcast(api.ChannelSwitchUpdated, ev)
		}
	}
}
