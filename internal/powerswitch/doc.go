// Package powerswitch implements the remotely controllable power switch.
//
// The package has four layers, leaves first:
//
//   - Wire codec: Command and Response with fixed-size binary encodings
//     (1 byte per command, 9 bytes per response).
//   - State machine: Switch holds the on/off flag, a description and a
//     fixed power consumption, and maps commands to responses.
//   - Connection server: Server accepts TCP connections and serialises
//     access to one Shared switch across all connection handlers.
//   - Remote client: Client performs one request/response cycle at a time.
//
// # Wire Protocol
//
// A request is a single command byte:
//
//	0 = TurnOff, 1 = TurnOn, 2 = IsEnabled, 3 = GetPower, other = Unknown
//
// A response is exactly 9 bytes:
//
//	Byte 0:   tag (0 = Ok, 1 = Enabled, 2 = Disabled, 3 = Power, other = Unknown)
//	Byte 1-8: big-endian IEEE-754 float64, only meaningful for Power
//
// Decoding is total. Unrecognised codes and tags resolve to Unknown so a
// misbehaving peer never causes an error on either side.
//
// # Usage
//
//	sw, err := powerswitch.New(powerswitch.Settings{
//	    Description:      "Bathroom",
//	    InitialState:     0,
//	    PowerConsumption: 42.5,
//	})
//	srv, err := powerswitch.NewServer(ctx, powerswitch.ServerConfig{Address: ":7878"}, powerswitch.NewShared(sw))
//	go srv.Run(ctx)
//
//	client, err := powerswitch.Connect(ctx, powerswitch.ClientConfig{Address: "127.0.0.1:7878"})
//	resp, err := client.RunCommand(ctx, powerswitch.CommandTurnOn)
//
// # Thread Safety
//
// Switch is not safe for concurrent use. Shared, Server and Client are.
package powerswitch
