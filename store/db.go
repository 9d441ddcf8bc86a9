package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"simex/sim"
)

// Config database configuration.
type Config struct {
	Driver string // "sqlite" (default) or "postgres"
	Path   string // SQLite database file path
	URL    string // PostgreSQL connection string
	Schema string // PostgreSQL schema (default "public")
}

// DB durable portfolio/trade storage backed by SQLite or PostgreSQL.
// Portfolios are whole JSON documents keyed by trading mode; trades are
// an append-only table. Implements sim.PortfolioStore and
// sim.TradeLedger.
type DB struct {
	db         *sql.DB
	isPostgres bool
	schema     string
}

// Open connects to the configured database and initializes the table
// structure. A failed PostgreSQL connection falls back to SQLite so a
// transient outage at startup never leaves the simulators without
// storage.
func Open(cfg Config) (*DB, error) {
	s := &DB{}

	if cfg.Driver == "postgres" && cfg.URL != "" {
		s.isPostgres = true
		s.schema = cfg.Schema
		if s.schema == "" {
			s.schema = "public"
		}

		connString := cfg.URL
		if !strings.Contains(connString, "connect_timeout") {
			if strings.Contains(connString, "?") {
				connString += "&connect_timeout=30"
			} else {
				connString += "?connect_timeout=30"
			}
		}

		db, err := sql.Open("postgres", connString)
		if err == nil {
			db.SetMaxOpenConns(20)
			db.SetMaxIdleConns(10)
			db.SetConnMaxLifetime(10 * time.Minute)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if pingErr := db.PingContext(ctx); pingErr != nil {
				log.Printf("⚠️  PostgreSQL connection failed: %v", pingErr)
				log.Printf("⚠️  Falling back to SQLite...")
				db.Close()
				s.isPostgres = false
			} else {
				s.db = db
				log.Printf("✅ Connected to PostgreSQL database (schema: %s)", s.schema)
			}
		} else {
			log.Printf("⚠️  Failed to open PostgreSQL database: %v", err)
			log.Printf("⚠️  Falling back to SQLite...")
			s.isPostgres = false
		}
	}

	if !s.isPostgres {
		path := cfg.Path
		if path == "" {
			path = "simex.db"
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)")
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("SQLite database connection failed: %w", err)
		}
		s.db = db
	}

	if err := s.initDB(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

// Close closes the underlying connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// table returns the schema-qualified table name for PostgreSQL.
func (s *DB) table(name string) string {
	if s.isPostgres {
		return s.schema + "." + name
	}
	return name
}

func (s *DB) initDB() error {
	var schema string

	if s.isPostgres {
		schema = fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			mode TEXT PRIMARY KEY,
			doc TEXT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			mode TEXT NOT NULL,
			type TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_price REAL,
			exit_price REAL,
			notional REAL,
			leverage REAL,
			pnl REAL,
			reason TEXT,
			timestamp TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_trades_mode_ts ON %s(mode, timestamp);
		`, s.table("portfolios"), s.table("trades"), s.table("trades"))
	} else {
		schema = `
		CREATE TABLE IF NOT EXISTS portfolios (
			mode TEXT PRIMARY KEY,
			doc TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mode TEXT NOT NULL,
			type TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_price REAL,
			exit_price REAL,
			notional REAL,
			leverage REAL,
			pnl REAL,
			reason TEXT,
			timestamp DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_trades_mode_ts ON trades(mode, timestamp);
		`
	}

	_, err := s.db.Exec(schema)
	return err
}

// GetPortfolio reads the single snapshot document for mode.
func (s *DB) GetPortfolio(ctx context.Context, mode string) (*sim.Portfolio, error) {
	var query string
	if s.isPostgres {
		query = fmt.Sprintf("SELECT doc FROM %s WHERE mode = $1", s.table("portfolios"))
	} else {
		query = "SELECT doc FROM portfolios WHERE mode = ?"
	}

	var doc string
	err := s.db.QueryRowContext(ctx, query, mode).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, sim.ErrNoPortfolio
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio: %w", err)
	}

	var p sim.Portfolio
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("failed to decode portfolio document: %w", err)
	}
	return &p, nil
}

// PutPortfolio replaces the whole snapshot document for mode.
func (s *DB) PutPortfolio(ctx context.Context, mode string, p *sim.Portfolio) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode portfolio: %w", err)
	}

	var query string
	if s.isPostgres {
		query = fmt.Sprintf(`INSERT INTO %s (mode, doc, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP)
			ON CONFLICT (mode) DO UPDATE SET doc = EXCLUDED.doc, updated_at = CURRENT_TIMESTAMP`, s.table("portfolios"))
	} else {
		query = `INSERT INTO portfolios (mode, doc, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (mode) DO UPDATE SET doc = excluded.doc, updated_at = CURRENT_TIMESTAMP`
	}

	if _, err := s.db.ExecContext(ctx, query, mode, string(doc)); err != nil {
		return fmt.Errorf("failed to write portfolio: %w", err)
	}
	return nil
}

// AppendTrade inserts one immutable trade record.
func (s *DB) AppendTrade(ctx context.Context, mode string, tr sim.TradeRecord) error {
	var query string
	if s.isPostgres {
		query = fmt.Sprintf(`INSERT INTO %s
			(mode, type, symbol, side, entry_price, exit_price, notional, leverage, pnl, reason, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, s.table("trades"))
	} else {
		query = `INSERT INTO trades
			(mode, type, symbol, side, entry_price, exit_price, notional, leverage, pnl, reason, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}

	_, err := s.db.ExecContext(ctx, query,
		mode, string(tr.Type), tr.Symbol, string(tr.Side),
		tr.EntryPrice, tr.ExitPrice, tr.Notional, tr.Leverage,
		tr.PnL, tr.Reason, tr.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trade records for mode, newest first.
func (s *DB) RecentTrades(ctx context.Context, mode string, limit int) ([]sim.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var query string
	if s.isPostgres {
		query = fmt.Sprintf(`SELECT type, symbol, side, entry_price, exit_price, notional, leverage, pnl, reason, timestamp
			FROM %s WHERE mode = $1 ORDER BY id DESC LIMIT $2`, s.table("trades"))
	} else {
		query = `SELECT type, symbol, side, entry_price, exit_price, notional, leverage, pnl, reason, timestamp
			FROM trades WHERE mode = ? ORDER BY id DESC LIMIT ?`
	}

	rows, err := s.db.QueryContext(ctx, query, mode, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []sim.TradeRecord
	for rows.Next() {
		var tr sim.TradeRecord
		var trType, side string
		if err := rows.Scan(&trType, &tr.Symbol, &side, &tr.EntryPrice, &tr.ExitPrice,
			&tr.Notional, &tr.Leverage, &tr.PnL, &tr.Reason, &tr.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		tr.Type = sim.TradeType(trType)
		tr.Side = sim.Side(side)
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}
