// Package watchdog reports bridge liveness to the process supervisor.
//
// Liveness is proven end to end through the broker: the watchdog publishes a
// random nonce to a private check topic and waits for its own subscription to
// echo it back. Only an observed echo results in a supervisor notification.
//
//   - Start runs the startup handshake with bounded retries, then sends READY=1
//   - Run repeats the round trip every interval and sends WATCHDOG=1
//
// A missed heartbeat is returned as ErrHeartbeatTimeout. Callers treat it as
// fatal so the supervisor restarts the process instead of it running on with
// a dead broker connection.
package watchdog
