package house

import (
	"context"
	"fmt"
)

// DeviceSpec describes a device to seed.
type DeviceSpec struct {
	Name          string
	Kind          DeviceKind
	Description   string
	Address       string
	ListenAddress string
	PeerAddress   string
}

// RoomSpec describes a room to seed.
type RoomSpec struct {
	Name    string
	Devices []DeviceSpec
}

// Placement is a device together with the name of its room.
type Placement struct {
	Room   string
	Device DeviceRecord
}

// Seed writes rooms to an empty store. It does nothing and returns false
// if the store already holds at least one room.
func Seed(ctx context.Context, repo Repository, rooms []RoomSpec) (bool, error) {
	existing, err := repo.ListRooms(ctx)
	if err != nil {
		return false, fmt.Errorf("checking existing rooms: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	for i, spec := range rooms {
		room := &RoomRecord{Name: spec.Name, SortOrder: i}
		if err := repo.CreateRoom(ctx, room); err != nil {
			return false, fmt.Errorf("seeding room %q: %w", spec.Name, err)
		}
		for _, d := range spec.Devices {
			dev := &DeviceRecord{
				RoomID:        room.ID,
				Name:          d.Name,
				Kind:          d.Kind,
				Description:   d.Description,
				Address:       d.Address,
				ListenAddress: d.ListenAddress,
				PeerAddress:   d.PeerAddress,
			}
			if err := repo.CreateDevice(ctx, dev); err != nil {
				return false, fmt.Errorf("seeding device %q in room %q: %w", d.Name, spec.Name, err)
			}
		}
	}
	return true, nil
}

// Load builds a House from the store and returns every device placement.
func Load(ctx context.Context, name string, repo Repository) (*House, []Placement, error) {
	rooms, err := repo.ListRooms(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading rooms: %w", err)
	}
	devices, err := repo.ListDevices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading devices: %w", err)
	}

	h := New(name)
	roomNames := make(map[string]string, len(rooms))
	for _, rm := range rooms {
		h.AddRoom(rm.Name)
		roomNames[rm.ID] = rm.Name
	}

	placements := make([]Placement, 0, len(devices))
	for _, d := range devices {
		roomName, ok := roomNames[d.RoomID]
		if !ok {
			return nil, nil, fmt.Errorf("device %s: %w: %s", d.ID, ErrRoomNotFound, d.RoomID)
		}
		if _, err := h.AddDevice(roomName, d.Name); err != nil {
			return nil, nil, err
		}
		placements = append(placements, Placement{Room: roomName, Device: d})
	}
	return h, placements, nil
}
