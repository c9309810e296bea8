// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie16-sh is an interactive shell over a Pixie-16 crate:
// parameter access, boot, report, configuration import/export.
package main // import "github.com/go-daq/pixie16/cmd/pixie16-sh"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/go-daq/pixie16/crate"
	"github.com/go-daq/pixie16/internal/xcrate"
	"github.com/go-daq/pixie16/param"
)

func main() {
	var (
		cfg    = flag.String("cfg", "", "JSON crate configuration")
		legacy = flag.String("lset", "", "legacy text crate configuration")
		sim    = flag.Int("sim", 0, "run with n simulated modules")
	)

	log.SetPrefix("pixie16-sh: ")
	log.SetFlags(0)

	flag.Parse()

	err := xmain(*cfg, *legacy, *sim)
	if err != nil {
		log.Printf("%+v", err)
		os.Exit(xcrate.ExitCode(err))
	}
}

func xmain(cfg, legacy string, sim int) error {
	msg := log.New(os.Stdout, "pixie16-sh: ", 0)
	crt, err := xcrate.New(msg, xcrate.Options{Sim: sim, Config: cfg, Legacy: legacy})
	if err != nil {
		return err
	}
	defer crt.Close()

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	for {
		line, err := term.Prompt("pixie16> ")
		switch {
		case err == io.EOF || err == liner.ErrPromptAborted:
			fmt.Println()
			return nil
		case err != nil:
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)
		if line == "quit" || line == "exit" {
			return nil
		}
		err = dispatch(crt, line)
		if err != nil {
			msg.Printf("%+v", err)
		}
	}
}

func dispatch(crt *crate.Crate, line string) error {
	toks := strings.Fields(line)
	cmd, args := toks[0], toks[1:]
	switch cmd {
	case "help":
		fmt.Print(`commands:
  par-read  <mod> <name> [chan]
  par-write <mod> <name> [chan] <value>
  boot [pattern]
  report
  export <file.json>
  import <file.json>
  stats <mod>
  quit
`)
		return nil
	case "report":
		return crt.Report(os.Stdout)
	case "boot":
		pattern := byte(crate.BootAll)
		if len(args) == 1 {
			v, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 8)
			if err != nil {
				return fmt.Errorf("invalid boot pattern %q", args[0])
			}
			pattern = byte(v)
		}
		return crt.Boot(pattern)
	case "export":
		if len(args) != 1 {
			return fmt.Errorf("usage: export <file.json>")
		}
		return crt.ExportConfig(args[0])
	case "import":
		if len(args) != 1 {
			return fmt.Errorf("usage: import <file.json>")
		}
		_, err := crt.ImportConfig(args[0])
		return err
	case "stats":
		if len(args) != 1 {
			return fmt.Errorf("usage: stats <mod>")
		}
		return stats(crt, args[0])
	case "par-read":
		return parRead(crt, args)
	case "par-write":
		return parWrite(crt, args)
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func stats(crt *crate.Crate, arg string) error {
	num, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid module number %q", arg)
	}
	mod, err := crt.Module(num)
	if err != nil {
		return err
	}
	st, err := mod.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("real-time=%gs fifo-in=%d fifo-out=%d ovfl=%d hw-ovfl=%d\n",
		st.RealTime, st.FifoIn, st.FifoOut, st.Overflows, st.HwOverflows,
	)
	return nil
}

func parRead(crt *crate.Crate, args []string) error {
	if len(args) != 2 && len(args) != 3 {
		return fmt.Errorf("usage: par-read <mod> <name> [chan]")
	}
	num, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid module number %q", args[0])
	}
	mod, err := crt.Module(num)
	if err != nil {
		return err
	}
	name := args[1]
	if len(args) == 2 {
		if !param.IsModuleParam(name) {
			return fmt.Errorf("invalid module parameter %q", name)
		}
		par, err := param.LookupModuleParam(name)
		if err != nil {
			return err
		}
		v, err := mod.ReadModuleParam(par)
		if err != nil {
			return err
		}
		fmt.Printf("%s = %d\n", name, v)
		return nil
	}
	ch, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid channel %q", args[2])
	}
	par, err := param.LookupChannelParam(name)
	if err != nil {
		return err
	}
	v, err := mod.ReadChannelParam(par, ch)
	if err != nil {
		return err
	}
	fmt.Printf("%s[%d] = %v\n", name, ch, v)
	return nil
}

func parWrite(crt *crate.Crate, args []string) error {
	if len(args) != 3 && len(args) != 4 {
		return fmt.Errorf("usage: par-write <mod> <name> [chan] <value>")
	}
	num, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid module number %q", args[0])
	}
	mod, err := crt.Module(num)
	if err != nil {
		return err
	}
	name := args[1]
	if len(args) == 3 {
		par, err := param.LookupModuleParam(name)
		if err != nil {
			return err
		}
		v, err := strconv.ParseUint(args[2], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[2])
		}
		err = mod.WriteModuleParam(par, uint32(v))
		if err != nil {
			return err
		}
		return mod.SyncVars()
	}
	ch, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid channel %q", args[2])
	}
	par, err := param.LookupChannelParam(name)
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q", args[3])
	}
	err = mod.WriteChannelParam(par, ch, v)
	if err != nil {
		return err
	}
	return mod.SyncVars()
}
