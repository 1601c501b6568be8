// Package influxdb provides an optional InfluxDB v2 writer for the bridge.
//
// The bridge exports its operational counters (frames received, decoded,
// unknown, unmatched, commands, frames sent) as periodic points. Writes are
// non-blocking and batched by the underlying client; failures surface through
// the SetOnError callback.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without metrics export
//	}
//	defer client.Close()
//
//	client.WritePointWithTime("rvc_bridge",
//	    map[string]string{"bridge": "rvc"},
//	    map[string]interface{}{"frames_received": 1024},
//	    time.Now())
package influxdb
