// Package database opens the MySQL connection pool used by the journal.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-sales-engine/internal/config"
)

// DSN builds the driver DSN.  parseTime maps DATETIME to time.Time and
// loc=UTC keeps stored times in UTC.
func DSN(cfg config.DBConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Pass
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// Open connects to MySQL, retrying the ping up to attempts times while the
// server comes up.
func Open(ctx context.Context, cfg config.DBConfig, attempts int, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	if attempts < 1 {
		attempts = 1
	}
	for i := 1; ; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			log.Info().Str("host", cfg.Host).Str("db", cfg.Name).Msg("connected to mysql")
			return db, nil
		}
		if i >= attempts {
			break
		}
		log.Warn().Err(err).Int("attempt", i).Msg("mysql ping failed, retrying")
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	_ = db.Close()
	return nil, fmt.Errorf("connect mysql %s:%s/%s after %d attempts: %w", cfg.Host, cfg.Port, cfg.Name, attempts, err)
}
