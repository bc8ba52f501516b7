// Package db mirrors in-flight conversations into Postgres so a restart does not lose them.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
)

// Schema holds the bot's tables
const Schema = "avito_helper"

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// NewDB connects using connStr, or DB_* environment variables when connStr is empty
func NewDB(ctx context.Context, connStr string) (*DB, error) {
	if connStr == "" {
		connStr = connStringFromEnv()
	}

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func connStringFromEnv() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "avito_helper")
	password := getEnvOrDefault("DB_PASSWORD", "")
	dbname := getEnvOrDefault("DB_NAME", "avito_helper")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the conversations table if it doesn't exist
func (db *DB) initSchema(ctx context.Context) error {
	// The schema may be provisioned by an operator without granting CREATE
	if _, err := db.conn.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+Schema); err != nil {
		slog.Warn("could not create schema, assuming it exists", "schema", Schema, "err", err)
	}

	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+Schema+`.conversations (
			chat_id BIGINT PRIMARY KEY,
			state VARCHAR(20) NOT NULL,
			query TEXT NOT NULL DEFAULT '',
			max_price INTEGER,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT valid_state CHECK (state IN ('awaiting_query', 'awaiting_price'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create conversations table: %w", err)
	}

	slog.Info("database schema initialized")
	return nil
}
