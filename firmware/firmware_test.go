// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package firmware

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-daq/pixie16/errs"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		desc  string
		delim byte
		want  Firmware
		err   bool
	}{
		{
			desc:  "1.2.3:15:sys:/opt/fw/syspixie16.bin",
			delim: ':',
			want: Firmware{
				Version: "1.2.3", ModRevision: 15,
				Device: "sys", Filename: "/opt/fw/syspixie16.bin",
			},
		},
		{
			desc:  "r33339,17,fippi,fippixie16.bin",
			delim: ',',
			want: Firmware{
				Version: "r33339", ModRevision: 17,
				Device: "fippi", Filename: "fippixie16.bin",
			},
		},
		{
			desc:  "1.0  15\tdsp  Pixie16DSP.ldr",
			delim: ' ',
			want: Firmware{
				Version: "1.0", ModRevision: 15,
				Device: "dsp", Filename: "Pixie16DSP.ldr",
			},
		},
		{
			desc:  "1.2.3:15:sys",
			delim: ':',
			err:   true,
		},
		{
			desc:  "1.2.3:rev:sys:file.bin",
			delim: ':',
			err:   true,
		},
		{
			desc:  "1.2.3:15:mcu:file.bin",
			delim: ':',
			err:   true,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			fw, err := Parse(tc.desc, tc.delim)
			if tc.err {
				if err == nil {
					t.Fatalf("expected an error parsing %q", tc.desc)
				}
				if errs.CodeOf(err) != errs.ModuleInvalidFirmware {
					t.Fatalf("invalid error code: got=%v", errs.CodeOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("could not parse %q: %+v", tc.desc, err)
			}
			if got, want := *fw, tc.want; got.Version != want.Version ||
				got.ModRevision != want.ModRevision ||
				got.Device != want.Device ||
				got.Filename != want.Filename {
				t.Fatalf("invalid firmware:\ngot = %#v\nwant= %#v", got, want)
			}
		})
	}
}

func TestAddCheck(t *testing.T) {
	crate := make(Crate)
	fw, err := Parse("1.2.3:15:sys:syspixie16.bin", ':')
	if err != nil {
		t.Fatalf("could not parse firmware: %+v", err)
	}

	if Check(crate, fw) {
		t.Fatalf("empty crate claims to hold %v", fw)
	}
	err = Add(crate, fw)
	if err != nil {
		t.Fatalf("could not add firmware: %+v", err)
	}
	if !Check(crate, fw) {
		t.Fatalf("crate does not hold %v after add", fw)
	}

	// a second add of an equal triple must fail, whatever the file
	dup, err := Parse("1.2.3:15:sys:other-site.bin", ':')
	if err != nil {
		t.Fatalf("could not parse firmware: %+v", err)
	}
	err = Add(crate, dup)
	if err == nil {
		t.Fatalf("expected an error adding a duplicate firmware")
	}
	if errs.CodeOf(err) != errs.ModuleInvalidFirmware {
		t.Fatalf("invalid error code: got=%v", errs.CodeOf(err))
	}
}

func TestFind(t *testing.T) {
	def, err := Parse("1.0:15:sys:generic.bin", ':')
	if err != nil {
		t.Fatalf("could not parse firmware: %+v", err)
	}
	slot5, err := Parse("1.1:15:sys:slot5.bin", ':')
	if err != nil {
		t.Fatalf("could not parse firmware: %+v", err)
	}
	slot5.Slots = []int{5}

	mod := Module{def, slot5}

	fw, err := Find(mod, Sys, 5)
	if err != nil {
		t.Fatalf("could not find slot-5 firmware: %+v", err)
	}
	if fw != slot5 {
		t.Fatalf("slot-specific firmware not preferred: got %v", fw)
	}

	fw, err = Find(mod, Sys, 7)
	if err != nil {
		t.Fatalf("could not find default firmware: %+v", err)
	}
	if fw != def {
		t.Fatalf("default firmware not selected: got %v", fw)
	}

	_, err = Find(mod, DSP, 5)
	if err == nil {
		t.Fatalf("expected an error finding a missing device")
	}
	if errs.CodeOf(err) != errs.FileNotFound {
		t.Fatalf("invalid error code: got=%v", errs.CodeOf(err))
	}
}

func TestLoadClear(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "image.bin")
	raw := []byte{1, 0, 0, 0, 2, 0, 0, 0}
	err := os.WriteFile(fname, raw, 0644)
	if err != nil {
		t.Fatalf("could not create image file: %+v", err)
	}

	fw := &Firmware{
		Version: "1.0", ModRevision: 15, Device: Sys, Filename: fname,
	}
	words, err := fw.Words()
	if err != nil {
		t.Fatalf("could not load image: %+v", err)
	}
	if got, want := len(words), 2; got != want {
		t.Fatalf("invalid image size: got=%d, want=%d", got, want)
	}
	if words[0] != 1 || words[1] != 2 {
		t.Fatalf("invalid image words: %v", words)
	}

	// load is lazy: removing the file does not invalidate the image
	err = os.Remove(fname)
	if err != nil {
		t.Fatalf("could not remove image file: %+v", err)
	}
	err = fw.Load()
	if err != nil {
		t.Fatalf("lazy load hit the filesystem: %+v", err)
	}

	fw.Clear()
	err = fw.Load()
	if err == nil {
		t.Fatalf("expected an error loading a cleared firmware")
	}
}
