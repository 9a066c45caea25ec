// Package storage provides persistent trap event storage and querying.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/geekxflood/triton/internal/snmp"
)

// StorageConfig holds configuration for the trap event store.
type StorageConfig struct {
	DatabaseType     string        `json:"database_type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	RetentionDays    int           `json:"retention_days"`
	CleanupInterval  time.Duration `json:"cleanup_interval"`
	EnableIndexes    bool          `json:"enable_indexes"`
}

// DefaultStorageConfig returns a default storage configuration.
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		DatabaseType:     "sqlite3",
		ConnectionString: "./triton_traps.db",
		MaxConnections:   10,
		RetentionDays:    30,
		CleanupInterval:  time.Hour,
		EnableIndexes:    true,
	}
}

// TrapEvent is a stored SNMPv1 trap.
type TrapEvent struct {
	ID            int64     `json:"id" db:"id"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	SourceIP      string    `json:"source_ip" db:"source_ip"`
	Community     string    `json:"community" db:"community"`
	EnterpriseOID string    `json:"enterprise_oid" db:"enterprise_oid"`
	AgentAddress  string    `json:"agent_address" db:"agent_address"`
	GenericTrap   int       `json:"generic_trap" db:"generic_trap"`
	GenericName   string    `json:"generic_name" db:"generic_name"`
	SpecificTrap  uint32    `json:"specific_trap" db:"specific_trap"`
	TimeTicks     uint32    `json:"time_ticks" db:"time_ticks"`
	Variables     string    `json:"variables" db:"variables"` // JSON encoded
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// variableRecord is the JSON shape of one stored variable binding.
type variableRecord struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// StorageStats tracks store statistics.
type StorageStats struct {
	EventsStored  int64      `json:"events_stored"`
	StoreErrors   int64      `json:"store_errors"`
	EventsPurged  int64      `json:"events_purged"`
	TotalEvents   int64      `json:"total_events"`
	OldestEvent   *time.Time `json:"oldest_event,omitempty"`
	NewestEvent   *time.Time `json:"newest_event,omitempty"`
	LastCleanup   time.Time  `json:"last_cleanup"`
}

// Storage persists trap events in SQLite.
type Storage struct {
	config *StorageConfig
	logger logging.Logger
	db     *sql.DB
	stats  *StorageStats
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewStorage creates a trap event store from configuration.
func NewStorage(cfg config.Provider, logger logging.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	storageConfig := DefaultStorageConfig()

	if dbType, err := cfg.GetString("storage.database_type", storageConfig.DatabaseType); err == nil {
		storageConfig.DatabaseType = dbType
	}
	if connStr, err := cfg.GetString("storage.connection_string", storageConfig.ConnectionString); err == nil {
		storageConfig.ConnectionString = connStr
	}
	if maxConn, err := cfg.GetInt("storage.max_connections", storageConfig.MaxConnections); err == nil {
		storageConfig.MaxConnections = maxConn
	}
	if retention, err := cfg.GetInt("storage.retention_days", storageConfig.RetentionDays); err == nil {
		storageConfig.RetentionDays = retention
	}
	if interval, err := cfg.GetDuration("storage.cleanup_interval", storageConfig.CleanupInterval); err == nil {
		storageConfig.CleanupInterval = interval
	}
	if indexes, err := cfg.GetBool("storage.enable_indexes", storageConfig.EnableIndexes); err == nil {
		storageConfig.EnableIndexes = indexes
	}

	db, err := sql.Open(storageConfig.DatabaseType, storageConfig.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(storageConfig.MaxConnections)
	db.SetMaxIdleConns(storageConfig.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Storage{
		config: storageConfig,
		logger: logger,
		db:     db,
		stats:  &StorageStats{},
		ctx:    ctx,
		cancel: cancel,
	}

	if err := s.initSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	s.wg.Add(1)
	go s.cleanupWorker()

	return s, nil
}

// initSchema creates the traps table and indexes.
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS traps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		source_ip TEXT NOT NULL,
		community TEXT NOT NULL,
		enterprise_oid TEXT NOT NULL,
		agent_address TEXT NOT NULL,
		generic_trap INTEGER NOT NULL,
		generic_name TEXT NOT NULL,
		specific_trap INTEGER NOT NULL,
		time_ticks INTEGER NOT NULL,
		variables TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create traps table: %w", err)
	}

	if s.config.EnableIndexes {
		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_traps_timestamp ON traps(timestamp);",
			"CREATE INDEX IF NOT EXISTS idx_traps_source_ip ON traps(source_ip);",
			"CREATE INDEX IF NOT EXISTS idx_traps_enterprise_oid ON traps(enterprise_oid);",
			"CREATE INDEX IF NOT EXISTS idx_traps_generic_trap ON traps(generic_trap);",
		}
		for _, idx := range indexes {
			if _, err := s.db.Exec(idx); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}
	}

	return nil
}

// EventFromTrap converts a decoded trap to its storable form.
func EventFromTrap(trap *snmp.Trap, community, sourceIP string, receivedAt time.Time) (*TrapEvent, error) {
	if trap == nil {
		return nil, fmt.Errorf("trap cannot be nil")
	}

	records := make([]variableRecord, 0, len(trap.Variables))
	for _, v := range trap.Variables {
		records = append(records, variableRecord{
			Name:  v.Name.String(),
			Type:  v.Value.Kind.String(),
			Value: v.Value.String(),
		})
	}

	var variables string
	if len(records) > 0 {
		encoded, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("failed to encode variables: %w", err)
		}
		variables = string(encoded)
	}

	return &TrapEvent{
		Timestamp:     receivedAt,
		SourceIP:      sourceIP,
		Community:     community,
		EnterpriseOID: trap.EnterpriseOID.String(),
		AgentAddress:  trap.AgentAddr.String(),
		GenericTrap:   int(trap.Generic),
		GenericName:   trap.Generic.String(),
		SpecificTrap:  trap.Specific,
		TimeTicks:     trap.TimeTicks,
		Variables:     variables,
	}, nil
}

// StoreTrap inserts one trap event and returns its ID.
func (s *Storage) StoreTrap(event *TrapEvent) (int64, error) {
	if event == nil {
		return 0, fmt.Errorf("event cannot be nil")
	}

	result, err := s.db.Exec(`
		INSERT INTO traps (
			timestamp, source_ip, community, enterprise_oid, agent_address,
			generic_trap, generic_name, specific_trap, time_ticks, variables
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Timestamp, event.SourceIP, event.Community, event.EnterpriseOID,
		event.AgentAddress, event.GenericTrap, event.GenericName,
		event.SpecificTrap, event.TimeTicks, event.Variables,
	)
	if err != nil {
		s.mu.Lock()
		s.stats.StoreErrors++
		s.mu.Unlock()
		return 0, fmt.Errorf("failed to insert trap event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get event ID: %w", err)
	}

	s.mu.Lock()
	s.stats.EventsStored++
	s.mu.Unlock()

	return id, nil
}

// GetEvent returns one stored trap event by ID.
func (s *Storage) GetEvent(id int64) (*TrapEvent, error) {
	row := s.db.QueryRow(`
		SELECT id, timestamp, source_ip, community, enterprise_oid, agent_address,
		       generic_trap, generic_name, specific_trap, time_ticks, variables, created_at
		FROM traps WHERE id = ?`, id)

	event := &TrapEvent{}
	err := row.Scan(&event.ID, &event.Timestamp, &event.SourceIP, &event.Community,
		&event.EnterpriseOID, &event.AgentAddress, &event.GenericTrap, &event.GenericName,
		&event.SpecificTrap, &event.TimeTicks, &event.Variables, &event.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trap event %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trap event: %w", err)
	}
	return event, nil
}

// ListRecent returns the most recent trap events, newest first.
func (s *Storage) ListRecent(limit int) ([]*TrapEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, timestamp, source_ip, community, enterprise_oid, agent_address,
		       generic_trap, generic_name, specific_trap, time_ticks, variables, created_at
		FROM traps ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trap events: %w", err)
	}
	defer rows.Close()

	var events []*TrapEvent
	for rows.Next() {
		event := &TrapEvent{}
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.SourceIP, &event.Community,
			&event.EnterpriseOID, &event.AgentAddress, &event.GenericTrap, &event.GenericName,
			&event.SpecificTrap, &event.TimeTicks, &event.Variables, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trap event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CountEvents returns the number of stored trap events.
func (s *Storage) CountEvents() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM traps").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trap events: %w", err)
	}
	return count, nil
}

// cleanupWorker periodically purges events older than the retention window.
func (s *Storage) cleanupWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.purgeExpired(); err != nil {
				s.logger.Warn("trap retention cleanup failed", "error", err.Error())
			}
		}
	}
}

// purgeExpired deletes events past the retention window.
func (s *Storage) purgeExpired() error {
	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)

	result, err := s.db.Exec("DELETE FROM traps WHERE timestamp < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge expired events: %w", err)
	}

	purged, _ := result.RowsAffected()

	s.mu.Lock()
	s.stats.EventsPurged += purged
	s.stats.LastCleanup = time.Now()
	s.mu.Unlock()

	if purged > 0 {
		s.logger.Info("purged expired trap events", "count", purged)
	}
	return nil
}

// GetStats returns a snapshot of storage statistics.
func (s *Storage) GetStats() (*StorageStats, error) {
	s.mu.RLock()
	stats := *s.stats
	s.mu.RUnlock()

	if err := s.db.QueryRow("SELECT COUNT(*) FROM traps").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to count trap events: %w", err)
	}

	var oldest, newest sql.NullTime
	if err := s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM traps").Scan(&oldest, &newest); err == nil {
		if oldest.Valid {
			stats.OldestEvent = &oldest.Time
		}
		if newest.Valid {
			stats.NewestEvent = &newest.Time
		}
	}

	return &stats, nil
}

// Close stops the cleanup worker and closes the database.
func (s *Storage) Close() error {
	s.cancel()
	s.wg.Wait()
	return s.db.Close()
}
