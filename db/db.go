package db

import (
	"database/sql"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection. The returned
// handle is passed into handler and service constructors; there is no
// package-level singleton.
func Open(databaseURL string) (*sql.DB, error) {
	d, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	d.SetMaxOpenConns(20)
	d.SetMaxIdleConns(5)
	d.SetConnMaxLifetime(30 * time.Minute)

	if err := d.Ping(); err != nil {
		return nil, err
	}
	return d, nil
}

// ApplySchema executes the idempotent schema file against the database.
func ApplySchema(d *sql.DB, path string) error {
	sqlBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = d.Exec(string(sqlBytes))
	return err
}
