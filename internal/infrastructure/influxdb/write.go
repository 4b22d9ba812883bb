package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements, tags and fields written by this package.
const (
	MeasurementDeviceMetrics = "device_metrics"
	MeasurementEnergy        = "energy"

	MetricTemperature = "temperature_c"

	TagDeviceID = "device_id"
	TagMetric   = "measurement"

	FieldValue      = "value"
	FieldPowerWatts = "power_watts"
	FieldOn         = "on"
)

// WriteTemperature queues one thermometer sample.
func (c *Client) WriteTemperature(deviceID string, celsius float64, at time.Time) {
	c.WriteDeviceMetric(deviceID, MetricTemperature, celsius, at)
}

// WriteSwitchPower queues the draw of a power switch. Callers pass zero
// watts for an Off switch so the series stays continuous.
func (c *Client) WriteSwitchPower(deviceID string, watts float64, on bool, at time.Time) {
	c.WritePoint(MeasurementEnergy,
		map[string]string{TagDeviceID: deviceID},
		map[string]any{FieldPowerWatts: watts, FieldOn: on},
		at)
}

// WriteDeviceMetric queues a single named reading for a device:
//
//	client.WriteDeviceMetric("living-room-thermometer", "temperature_c", 21.5, time.Now())
func (c *Client) WriteDeviceMetric(deviceID, metric string, value float64, at time.Time) {
	c.WritePoint(MeasurementDeviceMetrics,
		map[string]string{TagDeviceID: deviceID, TagMetric: metric},
		map[string]any{FieldValue: value},
		at)
}

// WritePoint queues an arbitrary point; a zero at is stamped with the
// current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	c.enqueue(write.NewPoint(measurement, tags, fields, at))
}
