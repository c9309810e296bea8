// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to retrieve conditions and configuration
// data for a Pixie-16 crate from the site condition database: firmware
// sets per module revision and per-channel settings per module serial.
package conddb // import "github.com/go-daq/pixie16/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/go-daq/pixie16/firmware"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to retrieve conditions data from the
// Pixie-16 database.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the condition database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastFirmwareSet returns the identifier of the most recent validated
// firmware set.
func (db *DB) LastFirmwareSet(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := ""
	rows, err := db.db.QueryContext(
		ctx,
		`select version from fwsets where state = "ok" order by date desc limit 1`,
	)
	if err != nil {
		return "", fmt.Errorf("conddb: could not get last firmware set: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&set)
		if err != nil {
			return "", fmt.Errorf("conddb: could not scan firmware set: %w", err)
		}
	}
	err = rows.Err()
	if err != nil {
		return "", fmt.Errorf("conddb: could not get last firmware set: %w", err)
	}

	return set, nil
}

// FirmwareSet retrieves the firmware descriptors of the named set, one
// per (revision, device) pair.
func (db *DB) FirmwareSet(ctx context.Context, version string) ([]*firmware.Firmware, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		`select revision, device, filename from firmwares where version = ?`,
		version,
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query firmware set %q: %w", version, err)
	}
	defer rows.Close()

	var fws []*firmware.Firmware
	for rows.Next() {
		fw := &firmware.Firmware{Version: version}
		err = rows.Scan(&fw.ModRevision, &fw.Device, &fw.Filename)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan firmware row: %w", err)
		}
		fws = append(fws, fw)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query firmware set %q: %w", version, err)
	}
	if len(fws) == 0 {
		return nil, fmt.Errorf("conddb: empty firmware set %q", version)
	}

	return fws, nil
}

// ChannelSetting is one named parameter value of one channel.
type ChannelSetting struct {
	Channel int
	Name    string
	Value   float64
}

// ChannelSettings retrieves the validated channel settings of the
// module with the given serial number.
func (db *DB) ChannelSettings(ctx context.Context, serial int) ([]ChannelSetting, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		`select channel, name, value from settings where serial = ? order by channel`,
		serial,
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query settings of serial=%d: %w", serial, err)
	}
	defer rows.Close()

	var out []ChannelSetting
	for rows.Next() {
		var set ChannelSetting
		err = rows.Scan(&set.Channel, &set.Name, &set.Value)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan setting row: %w", err)
		}
		out = append(out, set)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query settings of serial=%d: %w", serial, err)
	}

	return out, nil
}
