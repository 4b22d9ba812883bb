package house

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence operations for the house directory.
type Repository interface {
	CreateRoom(ctx context.Context, room *RoomRecord) error
	ListRooms(ctx context.Context) ([]RoomRecord, error)
	GetRoomByName(ctx context.Context, name string) (*RoomRecord, error)
	DeleteRoom(ctx context.Context, id string) error

	CreateDevice(ctx context.Context, device *DeviceRecord) error
	ListDevices(ctx context.Context) ([]DeviceRecord, error)
	ListDevicesByRoom(ctx context.Context, roomID string) ([]DeviceRecord, error)
	DeleteDevice(ctx context.Context, id string) error

	// DeleteAll removes every room and device and returns the number of
	// rooms removed.
	DeleteAll(ctx context.Context) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed house repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateRoom inserts a room. Empty ID and slug are generated.
func (r *SQLiteRepository) CreateRoom(ctx context.Context, room *RoomRecord) error {
	if err := ValidateName(room.Name); err != nil {
		return err
	}
	if room.ID == "" {
		room.ID = "room-" + uuid.NewString()[:8]
	}
	if room.Slug == "" {
		room.Slug = GenerateSlug(room.Name)
	}

	const query = `INSERT INTO rooms (id, name, slug, sort_order) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, room.ID, room.Name, room.Slug, room.SortOrder)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", ErrRoomExists, room.Name)
		}
		return fmt.Errorf("inserting room %s: %w", room.ID, err)
	}
	return nil
}

// ListRooms returns all rooms ordered by sort_order then name.
func (r *SQLiteRepository) ListRooms(ctx context.Context) ([]RoomRecord, error) {
	const query = `SELECT id, name, slug, sort_order, created_at FROM rooms ORDER BY sort_order, name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []RoomRecord
	for rows.Next() {
		var rm RoomRecord
		var createdAt string
		if err := rows.Scan(&rm.ID, &rm.Name, &rm.Slug, &rm.SortOrder, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning room row: %w", err)
		}
		rm.CreatedAt = parseTime(createdAt)
		rooms = append(rooms, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating room rows: %w", err)
	}
	return rooms, nil
}

// GetRoomByName returns a room by its display name.
func (r *SQLiteRepository) GetRoomByName(ctx context.Context, name string) (*RoomRecord, error) {
	const query = `SELECT id, name, slug, sort_order, created_at FROM rooms WHERE name = ?`
	var rm RoomRecord
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, name).Scan(&rm.ID, &rm.Name, &rm.Slug, &rm.SortOrder, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrRoomNotFound, name)
		}
		return nil, fmt.Errorf("scanning room: %w", err)
	}
	rm.CreatedAt = parseTime(createdAt)
	return &rm, nil
}

// DeleteRoom removes a room; its devices are removed by cascade.
func (r *SQLiteRepository) DeleteRoom(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting room %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return nil
}

// CreateDevice inserts a device. An empty ID is generated.
func (r *SQLiteRepository) CreateDevice(ctx context.Context, device *DeviceRecord) error {
	if err := device.Validate(); err != nil {
		return err
	}
	if device.ID == "" {
		device.ID = "dev-" + uuid.NewString()[:8]
	}

	const query = `INSERT INTO devices (id, room_id, name, kind, description, address,
		listen_address, peer_address)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		device.ID, device.RoomID, device.Name, string(device.Kind), device.Description,
		nullStr(device.Address), nullStr(device.ListenAddress), nullStr(device.PeerAddress))
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, device.RoomID)
		}
		return fmt.Errorf("inserting device %s: %w", device.ID, err)
	}
	return nil
}

const deviceColumns = `id, room_id, name, kind, description, address, listen_address, peer_address, created_at`

// ListDevices returns all devices ordered by room then name.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]DeviceRecord, error) {
	return r.queryDevices(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY room_id, name`)
}

// ListDevicesByRoom returns the devices of one room.
func (r *SQLiteRepository) ListDevicesByRoom(ctx context.Context, roomID string) ([]DeviceRecord, error) {
	return r.queryDevices(ctx, `SELECT `+deviceColumns+` FROM devices WHERE room_id = ? ORDER BY name`, roomID)
}

// DeleteDevice removes a device.
func (r *SQLiteRepository) DeleteDevice(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return nil
}

// DeleteAll removes every device and room.
func (r *SQLiteRepository) DeleteAll(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM devices`); err != nil {
		return 0, fmt.Errorf("deleting devices: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM rooms`)
	if err != nil {
		return 0, fmt.Errorf("deleting rooms: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]DeviceRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []DeviceRecord
	for rows.Next() {
		var d DeviceRecord
		var kind, createdAt string
		var address, listen, peer sql.NullString
		if err := rows.Scan(&d.ID, &d.RoomID, &d.Name, &kind, &d.Description,
			&address, &listen, &peer, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		d.Kind = DeviceKind(kind)
		d.Address = address.String
		d.ListenAddress = listen.String
		d.PeerAddress = peer.String
		d.CreatedAt = parseTime(createdAt)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// GenerateSlug creates a URL-safe slug from a name.
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.NewReplacer(" ", "-", "_", "-").Replace(slug)

	var b strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	slug = b.String()
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// parseTime parses the RFC3339 timestamps written by the schema defaults.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
