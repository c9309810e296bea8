// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie16-ctl watches the run directory of a Pixie-16 DAQ and
// raises mail alerts when the list-mode output files stop growing.
package main // import "github.com/go-daq/pixie16/cmd/pixie16-ctl"

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mail "gopkg.in/gomail.v2"
)

func main() {
	var (
		dir  = flag.String("dir", "", "run directory to monitor")
		freq = flag.Duration("freq", 30*time.Second, "probing interval")
	)

	flag.Parse()

	log.SetPrefix("pixie16-ctl: ")
	log.SetFlags(0)

	if *dir == "" {
		log.Fatalf("missing run directory (-dir)")
	}
	run(*dir, *freq)
}

type watcher struct {
	dir    string
	freq   time.Duration
	sizes  map[string]int64
	alerts map[string]int // alerts raised per file
}

func run(dir string, freq time.Duration) {
	w := &watcher{
		dir:    dir,
		freq:   freq,
		sizes:  make(map[string]int64),
		alerts: make(map[string]int),
	}
	log.Printf("monitoring %q every %v...", dir, freq)
	tick := time.NewTicker(freq)
	defer tick.Stop()
	for range tick.C {
		w.sweep()
	}
}

func (w *watcher) sweep() {
	fnames, err := filepath.Glob(filepath.Join(w.dir, "*.lmd"))
	if err != nil {
		log.Printf("could not scan %q: %+v", w.dir, err)
		return
	}
	for _, fname := range fnames {
		fi, err := os.Stat(fname)
		if err != nil {
			log.Printf("could not stat %q: %+v", fname, err)
			continue
		}
		last, seen := w.sizes[fname]
		w.sizes[fname] = fi.Size()
		if !seen {
			continue
		}
		if fi.Size() == last {
			w.alert(fname, fi.Size())
			continue
		}
		w.alerts[fname] = 0
	}
}

func (w *watcher) alert(fname string, size int64) {
	log.Printf("file %q didn't change in the last %v (size=%d bytes)",
		fname, w.freq, size,
	)
	w.alerts[fname]++

	const maxAlerts = 5
	if w.alerts[fname] < maxAlerts {
		w.alertMail(fname, size)
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func (w *watcher) alertMail(fname string, size int64) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[pixie16-ctl] file alert: %q", fname))
	msg.SetBody("text/plain", fmt.Sprintf("file: %q\nsize: %d bytes\nfreq: %v",
		fname, size, w.freq,
	))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
