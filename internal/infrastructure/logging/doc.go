// Package logging provides structured logging for the RV-C bridge.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same default fields (service, version) and level handling.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// The --debug flag overrides the configured level.
//
// # Usage
//
//	logger, closeLog, err := logging.New(cfg.Logging, "1.0.0", debug)
//	if err != nil {
//	    return err
//	}
//	defer closeLog()
//	logger.Component("bridge").Info("frame decoded", "dgn", "1FEDA")
//
// Never log broker passwords or InfluxDB tokens.
package logging
