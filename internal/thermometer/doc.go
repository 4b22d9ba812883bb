// Package thermometer receives temperature telemetry over UDP.
//
// A Receiver binds a local UDP socket and runs one background loop that
// accepts 8-byte big-endian float64 samples from a single designated peer
// and keeps the most recent one in a cell readers can query without
// blocking. Datagrams from any other sender are dropped.
//
// The loop waits for at most ReceiveTimeout per read so Stop is observed
// promptly even when no traffic arrives. Stop signals the loop, wakes the
// pending read and blocks until the loop has exited; no sample is
// published after Stop returns.
//
// A Sender and a Generator drive the receiver in demos and tests.
//
// # Usage
//
//	rx, err := thermometer.Start(thermometer.ReceiverConfig{
//	    ListenAddress: "127.0.0.1:4321",
//	    PeerAddress:   "127.0.0.1:4320",
//	}, thermometer.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer rx.Close()
//
//	fmt.Println(rx.Temperature())
package thermometer
