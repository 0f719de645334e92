// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runlog records the acquisition runs of a zlogan analyzer into
// a MySQL database.
//
// The catalog is a single table:
//
//	CREATE TABLE runs (
//	    start     DATETIME(6) NOT NULL,
//	    stop      DATETIME(6) NOT NULL,
//	    output    VARCHAR(255) NOT NULL,
//	    requested BIGINT NOT NULL,
//	    delivered BIGINT NOT NULL,
//	    state     VARCHAR(16) NOT NULL,
//	    overrun   BOOLEAN NOT NULL
//	);
package runlog // import "github.com/go-lpc/zlogan/runlog"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

var (
	drvName = "mysql"
)

// Run describes an acquisition run.
type Run struct {
	Start     time.Time
	Stop      time.Time
	Output    string // name of the container file
	Requested int    // number of requested words
	Delivered int    // number of words written to the container
	State     string // final state of the acquisition
	Overrun   bool
}

// DB is a connection to a run catalog.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the run catalog described by the MySQL
// data source name dsn.
func Open(dsn string) (*DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("runlog: could not parse DSN: %w", err)
	}
	// timestamps are scanned back into time.Time values.
	cfg.ParseTime = true

	db, err := sql.Open(drvName, cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("runlog: could not open %q db: %w", cfg.DBName, err)
	}

	err = ping(db, cfg.DBName)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: cfg.DBName}, nil
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("runlog: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Record appends run to the catalog.
func (db *DB) Record(ctx context.Context, run Run) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO runs (start, stop, output, requested, delivered, state, overrun) VALUES (?, ?, ?, ?, ?, ?, ?)",
		run.Start.UTC(), run.Stop.UTC(), run.Output,
		int64(run.Requested), int64(run.Delivered),
		run.State, run.Overrun,
	)
	if err != nil {
		return fmt.Errorf("runlog: could not record run: %w", err)
	}

	return nil
}

// Last returns the most recent run of the catalog.
func (db *DB) Last(ctx context.Context) (Run, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var run Run
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT start, stop, output, requested, delivered, state, overrun FROM runs ORDER BY start DESC LIMIT 1",
	)
	if err != nil {
		return run, fmt.Errorf("runlog: could not query last run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		err = rows.Err()
		if err == nil {
			err = sql.ErrNoRows
		}
		return run, fmt.Errorf("runlog: could not find last run: %w", err)
	}

	err = rows.Scan(
		&run.Start, &run.Stop, &run.Output,
		&run.Requested, &run.Delivered,
		&run.State, &run.Overrun,
	)
	if err != nil {
		return run, fmt.Errorf("runlog: could not scan last run: %w", err)
	}

	err = rows.Err()
	if err != nil {
		return run, fmt.Errorf("runlog: could not scan last run: %w", err)
	}

	return run, nil
}
