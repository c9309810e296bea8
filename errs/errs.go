// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errs defines the stable error codes of the Pixie-16 SDK and the
// typed error value carried across its internal boundaries.
//
// Codes are grouped in blocks of one hundred. The numeric values are part
// of the external API: a failing operation surfaces to the user as the
// negated code.
package errs // import "github.com/go-daq/pixie16/errs"

import (
	"errors"
	"fmt"
)

// Code is a stable Pixie-16 result code.
type Code int

const (
	Success Code = 0
)

// Crate codes.
const (
	CrateAlreadyOpen Code = 100 + iota
	CrateNotReady
	CrateInvalidParam
)

// Module codes.
const (
	ModuleNumberInvalid Code = 200 + iota
	ModuleTotalInvalid
	ModuleAlreadyOpen
	ModuleCloseFailure
	ModuleOffline
	ModuleInfoFailure
	ModuleInvalidOperation
	ModuleInvalidFirmware
	ModuleInitializeFailure
	ModuleInvalidParam
	ModuleInvalidVar
	ModuleParamDisabled
	ModuleParamReadonly
	ModuleParamWriteonly
	ModuleTaskTimeout
	ModuleInvalidSlot
	ModuleNotFound
	ModuleTestInvalid
)

// Channel codes.
const (
	ChannelNumberInvalid Code = 300 + iota
	ChannelInvalidParam
	ChannelInvalidVar
	ChannelInvalidIndex
	ChannelParamDisabled
	ChannelParamReadonly
	ChannelParamWriteonly
)

// Device codes.
const (
	DeviceLoadFailure Code = 500 + iota
	DeviceBootFailure
	DeviceInitializeFailure
	DeviceCopyFailure
	DeviceImageFailure
	DeviceHwFailure
	DeviceDmaFailure
	DeviceDmaBusy
	DeviceFifoFailure
	DeviceEepromFailure
	DeviceEepromBadType
	DeviceEepromNotFound
)

// Configuration codes.
const (
	ConfigInvalidParam Code = 600 + iota
	ConfigParamNotFound
	ConfigJSONError
)

// File handling codes.
const (
	FileNotFound Code = 700 + iota
	FileOpenFailure
	FileReadFailure
	FileSizeInvalid
	FileCreateFailure
)

// System codes.
const (
	NoMemory Code = 800 + iota
	SlotMapInvalid
	InvalidValue
	NotSupported
	BufferPoolEmpty
	BufferPoolNotEmpty
	BufferPoolBusy
	BufferPoolNotEnough
)

// Catch-all codes.
const (
	UnknownError Code = 900 + iota
	InternalFailure
	BadAllocation
	BadErrorCode
)

var codeText = map[Code]string{
	Success:                 "success",
	CrateAlreadyOpen:        "crate already open",
	CrateNotReady:           "crate not ready",
	CrateInvalidParam:       "invalid crate parameter",
	ModuleNumberInvalid:     "invalid module number",
	ModuleTotalInvalid:      "invalid module count",
	ModuleAlreadyOpen:       "module already open",
	ModuleCloseFailure:      "module failed to close",
	ModuleOffline:           "module offline",
	ModuleInfoFailure:       "module information failure",
	ModuleInvalidOperation:  "invalid module operation",
	ModuleInvalidFirmware:   "invalid module firmware",
	ModuleInitializeFailure: "module initialization failure",
	ModuleInvalidParam:      "invalid module parameter",
	ModuleInvalidVar:        "invalid module variable",
	ModuleParamDisabled:     "module parameter disabled",
	ModuleParamReadonly:     "module parameter is read-only",
	ModuleParamWriteonly:    "module parameter is write-only",
	ModuleTaskTimeout:       "module task timeout",
	ModuleInvalidSlot:       "invalid module slot",
	ModuleNotFound:          "module not found",
	ModuleTestInvalid:       "invalid module test",
	ChannelNumberInvalid:    "invalid channel number",
	ChannelInvalidParam:     "invalid channel parameter",
	ChannelInvalidVar:       "invalid channel variable",
	ChannelInvalidIndex:     "invalid channel index",
	ChannelParamDisabled:    "channel parameter disabled",
	ChannelParamReadonly:    "channel parameter is read-only",
	ChannelParamWriteonly:   "channel parameter is write-only",
	DeviceLoadFailure:       "device load failure",
	DeviceBootFailure:       "device boot failure",
	DeviceInitializeFailure: "device initialization failure",
	DeviceCopyFailure:       "device copy failure",
	DeviceImageFailure:      "device image failure",
	DeviceHwFailure:         "device hardware failure",
	DeviceDmaFailure:        "device DMA failure",
	DeviceDmaBusy:           "device DMA busy",
	DeviceFifoFailure:       "device FIFO failure",
	DeviceEepromFailure:     "device EEPROM failure",
	DeviceEepromBadType:     "device EEPROM bad type",
	DeviceEepromNotFound:    "device EEPROM not found",
	ConfigInvalidParam:      "invalid configuration parameter",
	ConfigParamNotFound:     "configuration parameter not found",
	ConfigJSONError:         "configuration JSON error",
	FileNotFound:            "file not found",
	FileOpenFailure:         "file open failure",
	FileReadFailure:         "file read failure",
	FileSizeInvalid:         "invalid file size",
	FileCreateFailure:       "file create failure",
	NoMemory:                "no memory",
	SlotMapInvalid:          "invalid slot map",
	InvalidValue:            "invalid value",
	NotSupported:            "not supported",
	BufferPoolEmpty:         "buffer pool empty",
	BufferPoolNotEmpty:      "buffer pool not empty",
	BufferPoolBusy:          "buffer pool busy",
	BufferPoolNotEnough:     "not enough buffers in pool",
	UnknownError:            "unknown error",
	InternalFailure:         "internal failure",
	BadAllocation:           "bad allocation",
	BadErrorCode:            "bad error code",
}

func (c Code) String() string {
	txt, ok := codeText[c]
	if !ok {
		return codeText[BadErrorCode]
	}
	return txt
}

// Error carries a stable result code together with context about the
// failing operation.
type Error struct {
	Code Code
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %+v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a typed error with the given code.
func New(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error with the given code, wrapping cause.
func Wrap(code Code, cause error, format string, args ...interface{}) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf extracts the result code of err. A nil error maps to Success,
// an untyped error to UnknownError.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return UnknownError
}

// ApiResult translates err into the signed integer result of the external
// API: 0 on success, the negated code otherwise.
func ApiResult(err error) int {
	return -int(CodeOf(err))
}
