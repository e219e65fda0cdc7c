// Copyright (C) 2026 The Edamame Authors.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package proto holds the memcached wire-protocol constants: binary
// opcodes, binary response status codes, and the fixed 24-byte binary
// header layout (§6).
package proto

// Status is the numeric errcode the cache engine and the binary
// protocol share (§4.4's "fixed table (STATUS_* codes)").
type Status uint16

const (
	StatusOK                Status = 0x00
	StatusKeyNotFound        Status = 0x01
	StatusKeyExists          Status = 0x02
	StatusValueTooLarge      Status = 0x03
	StatusInvalidArgs        Status = 0x04
	StatusNotStored          Status = 0x05
	StatusNonNumeric         Status = 0x06
	StatusVBucketElsewhere   Status = 0x07
	StatusAuthError          Status = 0x20
	StatusAuthContinue       Status = 0x21
	StatusUnknownCommand     Status = 0x81
	StatusOutOfMemory        Status = 0x82
	StatusNotSupported       Status = 0x83
	StatusInternalError      Status = 0x84
	StatusBusy               Status = 0x85
	StatusTemporaryFailure   Status = 0x86
)

// String renders the status the way the binary protocol's "status text"
// debugging aids usually do; ASCII responses use the dedicated mapping
// StatusToAsciiStorageResult (ascii.go) instead, since the text protocol's error strings
// don't correspond 1:1 with these codes.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "NO_ERROR"
	case StatusKeyNotFound:
		return "KEY_NOT_FOUND"
	case StatusKeyExists:
		return "KEY_EXISTS"
	case StatusValueTooLarge:
		return "VALUE_TOO_LARGE"
	case StatusInvalidArgs:
		return "INVALID_ARGS"
	case StatusNotStored:
		return "NOT_STORED"
	case StatusNonNumeric:
		return "NON_NUMERIC"
	case StatusVBucketElsewhere:
		return "VBUCKET_ELSEWHERE"
	case StatusAuthError:
		return "AUTH_ERROR"
	case StatusAuthContinue:
		return "AUTH_CONTINUE"
	case StatusUnknownCommand:
		return "UNKNOWN_COMMAND"
	case StatusOutOfMemory:
		return "OUT_OF_MEMORY"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusBusy:
		return "BUSY"
	case StatusTemporaryFailure:
		return "TEMPORARY_FAILURE"
	default:
		return "UNKNOWN_STATUS"
	}
}
