// Package storage persists per-node state and per-cycle aggregate stats
// to a SQLite-backed relational store: hand-written SQL for the
// high-churn node/stats tables (explicit COALESCE-style partial
// updates), GORM for the simple ecosystem-compatibility table.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store bundles the raw *sql.DB used by noderepo/statsrepo with the
// *gorm.DB used only by the aredn_info compatibility table.
type Store struct {
	SQL  *sql.DB
	GORM *gorm.DB
}

// Open opens (and creates if needed) a SQLite database at path, tuned
// for the cycle's write-burst-then-idle pattern.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")

	gdb, err := gorm.Open(sqlite.Dialector{Conn: db}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	return &Store{SQL: db, GORM: gdb}, nil
}

// Migrate creates every table the store owns.
func (s *Store) Migrate() error {
	createNodes := `CREATE TABLE IF NOT EXISTS nodes (
		wlan_ip TEXT PRIMARY KEY,
		node_name TEXT NOT NULL DEFAULT '',
		uptime TEXT NOT NULL DEFAULT '',
		load_avg TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		board_id TEXT NOT NULL DEFAULT '',
		firmware_mfg TEXT NOT NULL DEFAULT '',
		firmware_version TEXT NOT NULL DEFAULT '',
		api_version TEXT NOT NULL DEFAULT '',
		ssid TEXT NOT NULL DEFAULT '',
		channel TEXT NOT NULL DEFAULT '',
		channel_bandwidth TEXT NOT NULL DEFAULT '',
		frequency TEXT NOT NULL DEFAULT '',
		tunnel_installed TEXT NOT NULL DEFAULT 'false',
		active_tunnels TEXT NOT NULL DEFAULT '',
		lat REAL NOT NULL DEFAULT 0,
		lon REAL NOT NULL DEFAULT 0,
		wifi_mac TEXT NOT NULL DEFAULT '',
		lan_ip TEXT NOT NULL DEFAULT '',
		grid_square TEXT NOT NULL DEFAULT '',
		services TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		supernode TEXT NOT NULL DEFAULT 'false',
		gateway TEXT NOT NULL DEFAULT 'false',
		mesh_rf TEXT NOT NULL DEFAULT 'off',
		link_info TEXT NOT NULL DEFAULT '',
		hops_away INTEGER,
		last_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		antenna_gain REAL NOT NULL DEFAULT 0,
		beamwidth REAL NOT NULL DEFAULT 0,
		builtin TEXT NOT NULL DEFAULT '',
		response_time_ms REAL NOT NULL DEFAULT 0
	);`
	if _, err := s.SQL.Exec(createNodes); err != nil {
		return err
	}

	createStats := `CREATE TABLE IF NOT EXISTS cycle_stats (
		id TEXT PRIMARY KEY,
		configured_concurrency INTEGER NOT NULL DEFAULT 0,
		candidate_count INTEGER NOT NULL DEFAULT 0,
		count_failed INTEGER NOT NULL DEFAULT 0,
		max_hops_observed INTEGER NOT NULL DEFAULT 0,
		count_polled INTEGER NOT NULL DEFAULT 0,
		count_no_location INTEGER NOT NULL DEFAULT 0,
		mappable_nodes INTEGER NOT NULL DEFAULT 0,
		mappable_links INTEGER NOT NULL DEFAULT 0,
		cycle_duration_seconds REAL NOT NULL DEFAULT 0,
		babel_count INTEGER NOT NULL DEFAULT 0,
		olsr_count INTEGER NOT NULL DEFAULT 0,
		combo_count INTEGER NOT NULL DEFAULT 0,
		min_response_time_ms REAL NOT NULL DEFAULT 0,
		max_response_time_ms REAL NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := s.SQL.Exec(createStats); err != nil {
		return err
	}

	return s.GORM.AutoMigrate(&ArednInfoRow{})
}

// Flush drops and recreates every owned table, for the CLI's --flush
// startup option.
func (s *Store) Flush() error {
	for _, table := range []string{"nodes", "cycle_stats", "aredn_info"} {
		if _, err := s.SQL.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return err
		}
	}
	return s.Migrate()
}

// CloseSafe closes the store; a nil store returns an error instead of
// panicking.
func (s *Store) CloseSafe() error {
	if s == nil || s.SQL == nil {
		return errors.New("store is nil")
	}
	return s.SQL.Close()
}
