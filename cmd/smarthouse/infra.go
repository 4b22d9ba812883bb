package main

import (
	"context"
	"fmt"

	_ "github.com/nerrad567/smarthouse-core/migrations"

	"github.com/nerrad567/smarthouse-core/internal/house"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/mqtt"
)

// directory is the opened house directory.
type directory struct {
	db         *database.DB
	house      *house.House
	placements []house.Placement
}

// openDirectory opens and migrates the database, seeds it from the house
// section when it is empty, and loads the house.
//
// Parameters:
//   - ctx: Context for the database work
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - *directory: Loaded directory; the caller must close dir.db
//   - error: If any step fails
func openDirectory(ctx context.Context, cfg *config.Config, log *logging.Logger) (*directory, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := house.NewSQLiteRepository(db.DB)
	seeded, err := house.Seed(ctx, repo, roomSpecs(cfg.House))
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("seeding house directory: %w", err)
	}
	if seeded {
		log.Info("house directory seeded from configuration", "rooms", len(cfg.House.Rooms))
	}

	h, placements, err := house.Load(ctx, cfg.House.Name, repo)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("loading house directory: %w", err)
	}
	log.Info("house directory loaded", "rooms", len(h.Rooms()), "devices", len(placements))

	return &directory{db: db, house: h, placements: placements}, nil
}

// close closes the database.
func (d *directory) close(log *logging.Logger) {
	log.Info("closing database")
	if err := d.db.Close(); err != nil {
		log.Error("error closing database", "error", err)
	}
}

// roomSpecs converts the house section into seed specs.
func roomSpecs(hc config.HouseConfig) []house.RoomSpec {
	specs := make([]house.RoomSpec, 0, len(hc.Rooms))
	for _, rc := range hc.Rooms {
		spec := house.RoomSpec{Name: rc.Name}
		for _, dc := range rc.Devices {
			spec.Devices = append(spec.Devices, house.DeviceSpec{
				Name:          dc.Name,
				Kind:          house.DeviceKind(dc.Kind),
				Description:   dc.Description,
				Address:       dc.Address,
				ListenAddress: dc.ListenAddress,
				PeerAddress:   dc.PeerAddress,
			})
		}
		specs = append(specs, spec)
	}
	return specs
}

// deviceID is the stable identifier of a placed device on the message bus,
// in metrics and in API paths, e.g. "living-room-thermometer".
func deviceID(p house.Placement) string {
	return house.GenerateSlug(p.Room + " " + p.Device.Name)
}

// connectMQTT connects to the broker when MQTT is enabled. It returns a
// nil client when it is disabled.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// closeMQTT disconnects client if it is not nil.
func closeMQTT(client *mqtt.Client, log *logging.Logger) {
	if client == nil {
		return
	}
	log.Info("disconnecting from MQTT")
	if err := client.Close(); err != nil {
		log.Error("error closing MQTT", "error", err)
	}
}

// connectInflux connects to InfluxDB when it is enabled. It returns a nil
// client when it is disabled.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// closeInflux flushes and closes client if it is not nil.
func closeInflux(client *influxdb.Client, log *logging.Logger) {
	if client == nil {
		return
	}
	log.Info("closing InfluxDB connection")
	if err := client.Close(); err != nil {
		log.Error("error closing InfluxDB", "error", err)
	}
}
