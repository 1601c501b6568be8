// Package process supervises a long-running child process and streams its
// output line by line.
//
// The bridge uses it to run the capture tool (candump) that feeds the RV-C
// reader. If the tool exits unexpectedly it is restarted with exponential
// backoff, and the backoff resets once a run has stayed up long enough to be
// considered stable.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "candump",
//	    Binary:           "candump",
//	    Args:             []string{"-ta", "can0"},
//	    RestartOnFailure: true,
//	    OnLine:           func(line string) { bridge.HandleLine(line) },
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
