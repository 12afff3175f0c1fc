// Package sqlite provides SQLite-based persistent storage for Sorcha.
// Uses WAL mode for concurrent reads and crash-safe writes. The peer
// registry, local register advertisements, and subscriptions are loaded
// from here at startup so a restart does not forget the network.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/sorcha-network/sorcha/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS peers (
			peer_id        TEXT PRIMARY KEY,
			address        TEXT NOT NULL,
			port           INTEGER NOT NULL,
			failure_count  INTEGER NOT NULL DEFAULT 0,
			is_banned      BOOLEAN NOT NULL DEFAULT 0,
			ban_reason     TEXT NOT NULL DEFAULT '',
			banned_at      INTEGER,
			avg_latency_ms REAL NOT NULL DEFAULT 0,
			last_seen      INTEGER NOT NULL,
			registers      TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_peers_seen ON peers(last_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_peers_banned ON peers(is_banned)`,

		`CREATE TABLE IF NOT EXISTS local_registers (
			register_id    TEXT PRIMARY KEY,
			sync_state     TEXT NOT NULL,
			latest_version INTEGER NOT NULL DEFAULT 0,
			is_public      BOOLEAN NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id          TEXT PRIMARY KEY,
			register_id TEXT NOT NULL UNIQUE,
			mode        TEXT NOT NULL,
			created_at  INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS node_info (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Peer Repository ────────────────────────────────────────────────────────

// UpsertPeer inserts or updates a peer record. The advertised-register
// list is stored as a JSON column — it is replaced wholesale anyway.
func (d *DB) UpsertPeer(p domain.PeerNode) error {
	regs, err := json.Marshal(p.AdvertisedRegisters)
	if err != nil {
		return fmt.Errorf("encode registers: %w", err)
	}

	_, err = d.db.Exec(
		`INSERT INTO peers (peer_id, address, port, failure_count, is_banned, ban_reason, banned_at, avg_latency_ms, last_seen, registers)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(peer_id) DO UPDATE SET
			address=excluded.address,
			port=excluded.port,
			failure_count=excluded.failure_count,
			is_banned=excluded.is_banned,
			ban_reason=excluded.ban_reason,
			banned_at=excluded.banned_at,
			avg_latency_ms=excluded.avg_latency_ms,
			last_seen=excluded.last_seen,
			registers=excluded.registers`,
		p.PeerID, p.Address, p.Port, p.FailureCount, p.IsBanned, p.BanReason,
		nullableUnix(p.BannedAt), p.AverageLatencyMs, p.LastSeen.Unix(), string(regs),
	)
	return err
}

// ListPeers returns all persisted peers.
func (d *DB) ListPeers() ([]domain.PeerNode, error) {
	rows, err := d.db.Query(
		`SELECT peer_id, address, port, failure_count, is_banned, ban_reason, banned_at, avg_latency_ms, last_seen, registers
		 FROM peers ORDER BY peer_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []domain.PeerNode
	for rows.Next() {
		var p domain.PeerNode
		var bannedAt sql.NullInt64
		var lastSeen int64
		var regs string
		if err := rows.Scan(&p.PeerID, &p.Address, &p.Port, &p.FailureCount, &p.IsBanned,
			&p.BanReason, &bannedAt, &p.AverageLatencyMs, &lastSeen, &regs); err != nil {
			return nil, err
		}
		if bannedAt.Valid {
			t := time.Unix(bannedAt.Int64, 0)
			p.BannedAt = &t
		}
		p.LastSeen = time.Unix(lastSeen, 0)
		if err := json.Unmarshal([]byte(regs), &p.AdvertisedRegisters); err != nil {
			return nil, fmt.Errorf("decode registers for %s: %w", p.PeerID, err)
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// DeletePeer removes a peer record.
func (d *DB) DeletePeer(peerID string) error {
	_, err := d.db.Exec(`DELETE FROM peers WHERE peer_id = ?`, peerID)
	return err
}

// ─── Register Repository ────────────────────────────────────────────────────

// UpsertLocalRegister stores one locally advertised register.
func (d *DB) UpsertLocalRegister(reg domain.PeerRegisterInfo) error {
	_, err := d.db.Exec(
		`INSERT INTO local_registers (register_id, sync_state, latest_version, is_public)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(register_id) DO UPDATE SET
			sync_state=excluded.sync_state,
			latest_version=excluded.latest_version,
			is_public=excluded.is_public`,
		reg.RegisterID, string(reg.SyncState), reg.LatestVersion, reg.IsPublic,
	)
	return err
}

// ListLocalRegisters returns this node's advertised registers.
func (d *DB) ListLocalRegisters() ([]domain.PeerRegisterInfo, error) {
	rows, err := d.db.Query(
		`SELECT register_id, sync_state, latest_version, is_public FROM local_registers ORDER BY register_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []domain.PeerRegisterInfo
	for rows.Next() {
		var reg domain.PeerRegisterInfo
		var state string
		if err := rows.Scan(&reg.RegisterID, &state, &reg.LatestVersion, &reg.IsPublic); err != nil {
			return nil, err
		}
		reg.SyncState = domain.SyncState(state)
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// DeleteLocalRegister removes a local advertisement.
func (d *DB) DeleteLocalRegister(registerID string) error {
	_, err := d.db.Exec(`DELETE FROM local_registers WHERE register_id = ?`, registerID)
	return err
}

// ─── Subscription Repository ────────────────────────────────────────────────

// UpsertSubscription stores a register subscription.
func (d *DB) UpsertSubscription(sub domain.RegisterSubscription) error {
	_, err := d.db.Exec(
		`INSERT INTO subscriptions (id, register_id, mode, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			register_id=excluded.register_id,
			mode=excluded.mode,
			created_at=excluded.created_at`,
		sub.ID, sub.RegisterID, string(sub.Mode), sub.CreatedAt.Unix(),
	)
	return err
}

// ListSubscriptions returns all stored subscriptions.
func (d *DB) ListSubscriptions() ([]domain.RegisterSubscription, error) {
	rows, err := d.db.Query(`SELECT id, register_id, mode, created_at FROM subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.RegisterSubscription
	for rows.Next() {
		var sub domain.RegisterSubscription
		var mode string
		var created int64
		if err := rows.Scan(&sub.ID, &sub.RegisterID, &mode, &created); err != nil {
			return nil, err
		}
		sub.Mode = domain.SubscriptionMode(mode)
		sub.CreatedAt = time.Unix(created, 0)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes a subscription.
func (d *DB) DeleteSubscription(id string) error {
	_, err := d.db.Exec(`DELETE FROM subscriptions WHERE id = ?`, id)
	return err
}

// ─── Node Info ──────────────────────────────────────────────────────────────

// SetNodeInfo stores a key-value pair (node id, schema hints).
func (d *DB) SetNodeInfo(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO node_info (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

// GetNodeInfo retrieves a stored value, or "" when unset.
func (d *DB) GetNodeInfo(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM node_info WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func nullableUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
