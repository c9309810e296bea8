// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie16-sql inspects the Pixie-16 condition database:
// firmware sets and per-module channel settings.
package main // import "github.com/go-daq/pixie16/cmd/pixie16-sql"

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/go-daq/pixie16/conddb"
)

func main() {
	var (
		dbname = flag.String("db", "pixie16", "condition database name")
		fwset  = flag.String("fwset", "", "firmware set to display (default: latest)")
		serial = flag.Int("serial", -1, "display channel settings of this module serial")
	)

	log.SetPrefix("pixie16-sql: ")
	log.SetFlags(0)

	flag.Parse()

	err := xmain(*dbname, *fwset, *serial)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func xmain(dbname, fwset string, serial int) error {
	db, err := conddb.Open(dbname)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := log.New(os.Stdout, "", 0)

	if fwset == "" {
		fwset, err = db.LastFirmwareSet(ctx)
		if err != nil {
			return err
		}
	}
	msg.Printf("firmware set: %q", fwset)

	fws, err := db.FirmwareSet(ctx, fwset)
	if err != nil {
		return err
	}
	for _, fw := range fws {
		msg.Printf("  %s", fw)
	}

	if serial < 0 {
		return nil
	}
	sets, err := db.ChannelSettings(ctx, serial)
	if err != nil {
		return err
	}
	msg.Printf("settings of serial=%d:", serial)
	for _, set := range sets {
		msg.Printf("  chan=%02d %-20s %v", set.Channel, set.Name, set.Value)
	}
	return nil
}
