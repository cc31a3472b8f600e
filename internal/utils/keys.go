package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var kioskKeys struct {
	sync.RWMutex
	cache map[string]int
}

var keyDB struct {
	sync.Mutex
	dsn string
	db  *sql.DB
}

var (
	// ErrInvalidKioskKey signals that the provided kiosk key is not known.
	ErrInvalidKioskKey = errors.New("invalid kiosk key")
	// ErrKeyStoreNotReady signals that the key store has not been loaded yet,
	// typically while Postgres is still coming up.
	ErrKeyStoreNotReady = errors.New("kiosk key store not ready")
)

func postgresPort(cfg PostgresConfig) int {
	if cfg.Port != 0 {
		return cfg.Port
	}
	return 5432
}

func postgresDSN(cfg PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	if cfg.Host == "" {
		return "", fmt.Errorf("postgres host is empty")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("postgres database is empty")
	}
	if cfg.User == "" {
		return "", fmt.Errorf("postgres user is empty")
	}

	hostPort := cfg.Host
	port := postgresPort(cfg)
	// Handle IPv6 or explicit host:port strings.
	if strings.HasPrefix(hostPort, "[") {
		if !strings.Contains(hostPort, "]:") {
			hostPort = fmt.Sprintf("%s:%d", hostPort, port)
		}
	} else if strings.Count(hostPort, ":") >= 2 {
		hostPort = fmt.Sprintf("[%s]:%d", hostPort, port)
	} else if !strings.Contains(hostPort, ":") {
		hostPort = fmt.Sprintf("%s:%d", hostPort, port)
	}

	u := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	q := u.Query()
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func getKeyDB(cfg PostgresConfig) (*sql.DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	keyDB.Lock()
	defer keyDB.Unlock()

	if keyDB.db != nil && keyDB.dsn == dsn {
		return keyDB.db, nil
	}
	if keyDB.db != nil {
		_ = keyDB.db.Close()
		keyDB.db = nil
		keyDB.dsn = ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Small, low-throughput control plane table.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	keyDB.db = db
	keyDB.dsn = dsn
	return keyDB.db, nil
}

func ensureKioskKeySchema(cfg PostgresConfig) error {
	db, err := getKeyDB(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ddl1 := `CREATE TABLE IF NOT EXISTS kiosk_api_keys (
		key TEXT PRIMARY KEY,
		rate_limit INTEGER NOT NULL DEFAULT 60,
		label TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	ddl2 := `CREATE INDEX IF NOT EXISTS idx_kiosk_api_keys_created_at ON kiosk_api_keys (created_at);`
	if _, err := db.ExecContext(ctx, ddl1); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, ddl2); err != nil {
		return err
	}
	return nil
}

// LoadKioskKeysFromPostgres reads the kiosk API keys and their per-key rate
// limits from Postgres into the in-memory cache.
func LoadKioskKeysFromPostgres(cfg PostgresConfig) error {
	if err := ensureKioskKeySchema(cfg); err != nil {
		return err
	}

	db, err := getKeyDB(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT key, rate_limit FROM kiosk_api_keys;`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cache := make(map[string]int)
	for rows.Next() {
		var key string
		var limit int
		if err := rows.Scan(&key, &limit); err != nil {
			return err
		}
		cache[key] = limit
	}
	if err := rows.Err(); err != nil {
		return err
	}

	kioskKeys.Lock()
	kioskKeys.cache = cache
	kioskKeys.Unlock()
	return nil
}

// LoadKioskKeysFromMap replaces the in-memory key cache. Intended for tests
// and local debugging.
func LoadKioskKeysFromMap(m map[string]int) {
	cache := make(map[string]int)
	for k, v := range m {
		cache[k] = v
	}
	kioskKeys.Lock()
	kioskKeys.cache = cache
	kioskKeys.Unlock()
}

// KioskKeysReady returns true once the key cache has been loaded at least once.
func KioskKeysReady() bool {
	kioskKeys.RLock()
	defer kioskKeys.RUnlock()
	return kioskKeys.cache != nil
}

// ValidateKioskKey checks whether the given key exists in the cached list.
func ValidateKioskKey(key string) bool {
	kioskKeys.RLock()
	defer kioskKeys.RUnlock()
	_, ok := kioskKeys.cache[key]
	return ok
}

// GetKioskKeyRateLimit returns the configured rate limit for the given key, or
// 0 (no limit) when the key is unknown.
func GetKioskKeyRateLimit(key string) int {
	kioskKeys.RLock()
	defer kioskKeys.RUnlock()
	if limit, ok := kioskKeys.cache[key]; ok {
		return limit
	}
	return 0
}

// RefreshKioskKeysPeriodically reloads the key list from Postgres at the given
// interval until stop is closed.
func RefreshKioskKeysPeriodically(cfg PostgresConfig, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := LoadKioskKeysFromPostgres(cfg); err != nil {
				Error("Failed to reload kiosk keys", "error", err)
			}
		case <-stop:
			return
		}
	}
}
