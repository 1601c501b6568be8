// Package mqtt provides MQTT client connectivity for the RV-C bridge.
//
// This package manages:
//   - Connection to the broker with bounded initial attempts and auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored automatically after a reconnect
//   - A retained online/offline status topic backed by Last Will and Testament
//
// The status topic carries plain "online" / "offline" payloads so Home
// Assistant entities can bind their availability to it.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("rvc/ceiling_light/set", 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
