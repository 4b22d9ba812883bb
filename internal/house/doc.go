// Package house models the smart house directory and builds device reports.
//
// A House groups named devices into named rooms. It knows nothing about
// device state: a DeviceInfoProvider renders one status line per device
// and CreateReport concatenates them, room by room.
//
// The directory is persisted in SQLite (rooms and devices tables) through
// Repository; Seed populates an empty store from configuration and Load
// builds the in-memory House from it.
//
// # Usage
//
//	h, placements, err := house.Load(ctx, "Our house", repo)
//	reg := house.NewRegistry()
//	reg.Register("Bathroom", "switch1", powerswitch.NewRemoteReporter("Bathroom", addr))
//	report, err := h.CreateReport(ctx, reg)
package house
