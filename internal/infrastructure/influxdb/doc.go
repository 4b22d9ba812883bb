// Package influxdb writes device telemetry to InfluxDB v2.
//
// Thermometer samples go to the device_metrics measurement tagged with
// measurement=temperature_c; switch power draw goes to the energy
// measurement. Writes are batched and never block the caller.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write failed", "error", err) })
//	client.WriteTemperature("living-room", 21.75, time.Now())
package influxdb
