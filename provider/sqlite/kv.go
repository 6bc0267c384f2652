// Package sqlite provides a kv.KV implementation backed by an embedded sqlite database
package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oddbit-project/walletguard/utils"
	_ "modernc.org/sqlite"
)

const (
	ErrMissingDSN   = utils.Error("missing sqlite DSN")
	ErrInvalidTable = utils.Error("invalid table name")

	driverName = "sqlite"
)

type Config struct {
	DSN   string `json:"dsn"`   // file path or ":memory:"
	Table string `json:"table"` // table name; created if missing
}

// NewConfig returns a default configuration using an in-memory database
func NewConfig() *Config {
	return &Config{
		DSN:   ":memory:",
		Table: "kv_store",
	}
}

// Validate Config
func (c *Config) Validate() error {
	if c.DSN == "" {
		return ErrMissingDSN
	}
	if c.Table == "" {
		return ErrInvalidTable
	}
	for _, r := range c.Table {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return ErrInvalidTable
		}
	}
	return nil
}

type row struct {
	Value   []byte `db:"value"`
	Expires int64  `db:"expires"`
}

type KV struct {
	Conn *sqlx.DB
	cfg  *Config
	now  func() time.Time
}

// NewKV opens the database and ensures the table exists
func NewKV(cfg *Config) (*KV, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := sqlx.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; a single connection also keeps ":memory:" databases shared
	conn.SetMaxOpenConns(1)

	if _, err = conn.Exec(`CREATE TABLE IF NOT EXISTS ` + cfg.Table + ` (
		key TEXT PRIMARY KEY,
		value BLOB,
		expires INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &KV{
		Conn: conn,
		cfg:  cfg,
		now:  time.Now,
	}, nil
}

func (s *KV) Close() error {
	return s.Conn.Close()
}

// Set sets a key value
func (s *KV) Set(k string, v []byte) error {
	return s.SetTTL(k, v, 0)
}

// SetTTL sets a key value with ttl; ttl <= 0 means no expiry
func (s *KV) SetTTL(k string, v []byte, ttl time.Duration) error {
	var expires int64
	if ttl > 0 {
		expires = s.now().Add(ttl).UnixNano()
	}
	if v == nil {
		v = []byte{}
	}
	_, err := s.Conn.Exec(`INSERT INTO `+s.cfg.Table+` (key, value, expires) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires = excluded.expires`,
		k, v, expires)
	return err
}

// Get fetches a value
func (s *KV) Get(k string) ([]byte, error) {
	var r row
	err := s.Conn.Get(&r, `SELECT value, expires FROM `+s.cfg.Table+` WHERE key = ?`, k)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if r.Expires > 0 && r.Expires <= s.now().UnixNano() {
		return nil, s.Delete(k)
	}
	return r.Value, nil
}

// Delete removes a value
func (s *KV) Delete(k string) error {
	_, err := s.Conn.Exec(`DELETE FROM `+s.cfg.Table+` WHERE key = ?`, k)
	return err
}

// Keys lists live keys with the given prefix, in ascending order
func (s *KV) Keys(prefix string) ([]string, error) {
	result := make([]string, 0)
	err := s.Conn.Select(&result, `SELECT key FROM `+s.cfg.Table+`
		WHERE substr(CAST(key AS BLOB), 1, ?) = CAST(? AS BLOB) AND (expires = 0 OR expires > ?) ORDER BY key`,
		len(prefix), prefix, s.now().UnixNano())
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Prune removes expired records
func (s *KV) Prune() error {
	_, err := s.Conn.Exec(`DELETE FROM `+s.cfg.Table+` WHERE expires > 0 AND expires <= ?`, s.now().UnixNano())
	return err
}
