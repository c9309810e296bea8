// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errs

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestCodeValues(t *testing.T) {
	for _, tc := range []struct {
		code Code
		want int
	}{
		{Success, 0},
		{CrateAlreadyOpen, 100},
		{CrateInvalidParam, 102},
		{ModuleNumberInvalid, 200},
		{ModuleInvalidOperation, 206},
		{ModuleInvalidFirmware, 207},
		{ModuleTaskTimeout, 214},
		{ModuleTestInvalid, 217},
		{ChannelNumberInvalid, 300},
		{ChannelParamWriteonly, 306},
		{DeviceLoadFailure, 500},
		{DeviceBootFailure, 501},
		{DeviceHwFailure, 505},
		{DeviceDmaBusy, 507},
		{DeviceEepromNotFound, 511},
		{ConfigInvalidParam, 600},
		{ConfigJSONError, 602},
		{FileNotFound, 700},
		{FileCreateFailure, 704},
		{NoMemory, 800},
		{InvalidValue, 802},
		{BufferPoolEmpty, 804},
		{BufferPoolNotEnough, 807},
		{UnknownError, 900},
		{InternalFailure, 901},
		{BadErrorCode, 903},
	} {
		if got := int(tc.code); got != tc.want {
			t.Errorf("code %q: got=%d, want=%d", tc.code, got, tc.want)
		}
	}
}

func TestCodeText(t *testing.T) {
	if got, want := CrateAlreadyOpen.String(), "crate already open"; got != want {
		t.Fatalf("invalid text: got=%q, want=%q", got, want)
	}
	if got, want := Code(12345).String(), "bad error code"; got != want {
		t.Fatalf("invalid text for unknown code: got=%q, want=%q", got, want)
	}
}

func TestErrorWrap(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := Wrap(DeviceDmaFailure, cause, "module %d: dma failed", 3)
	if CodeOf(err) != DeviceDmaFailure {
		t.Fatalf("invalid code: %v", CodeOf(err))
	}
	if !strings.Contains(err.Error(), "module 3: dma failed") {
		t.Fatalf("invalid message: %q", err.Error())
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error does not unwrap to *Error")
	}
	if e.Unwrap() != cause {
		t.Fatalf("cause lost in wrapping")
	}

	// wrapping a typed error keeps the outermost code
	outer := Wrap(ModuleOffline, err, "module 3: offline")
	if CodeOf(outer) != ModuleOffline {
		t.Fatalf("invalid outer code: %v", CodeOf(outer))
	}
}

func TestApiResult(t *testing.T) {
	if got := ApiResult(nil); got != 0 {
		t.Fatalf("invalid result for nil: %d", got)
	}
	if got := ApiResult(New(ModuleOffline, "offline")); got != -204 {
		t.Fatalf("invalid result: got=%d, want=-204", got)
	}
	if got := ApiResult(fmt.Errorf("plain")); got != -900 {
		t.Fatalf("invalid result for untyped error: got=%d, want=-900", got)
	}
}
