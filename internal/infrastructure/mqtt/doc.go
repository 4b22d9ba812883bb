// Package mqtt is the broker link used to fan out device state and to
// receive switch commands.
//
// Switch servers publish a retained snapshot after every state change and
// listen for commands; thermometer receivers publish each temperature
// sample. All topics live under a configurable prefix (see Topics).
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	_ = client.Subscribe(topics.SwitchCommand("bathroom"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleCommand(payload)
//	    })
//	_ = client.PublishJSON(topics.SwitchState("bathroom"), snapshot, true)
//
// A retained online/offline status is kept on {prefix}/system/status, with
// a last will covering unexpected disconnects.
package mqtt
