// Copyright 2026 The hugelink Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux
// +build linux

package remap

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// This file is the only diagnostic path legal inside the unmap/remap
// transition window. Between the unmap and remap passes the process's own
// data mappings are gone, so nothing here may allocate, format through the
// standard library, or reach any lazily-resolved symbol. The allowlist is:
// the byte-appending formatter below, write(2) and kill(2) via raw
// syscalls.

const digits = "0123456789abcdef"

// appendUint appends the base-b representation of val to dst.
func appendUint(dst []byte, val uint64, base uint64) []byte {
	var tmp [64]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = digits[val%base]
		val /= base
		if val == 0 {
			break
		}
	}
	return append(dst, tmp[i:]...)
}

// appendFormat renders format into dst. Only two verbs are supported: %u
// substitutes an argument in unsigned decimal and %p in hexadecimal with a
// 0x prefix. Anything else is copied through verbatim.
func appendFormat(dst []byte, format string, args ...uint64) []byte {
	argi := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			dst = append(dst, c)
			continue
		}
		i++
		verb := format[i]
		if argi >= len(args) {
			dst = append(dst, '%', verb)
			continue
		}
		switch verb {
		case 'u':
			dst = appendUint(dst, args[argi], 10)
			argi++
		case 'p':
			dst = append(dst, '0', 'x')
			dst = appendUint(dst, args[argi], 16)
			argi++
		default:
			dst = append(dst, '%', verb)
		}
	}
	return dst
}

// abortf writes the formatted message to the standard error stream and
// terminates the process with SIGABRT, everything via raw syscalls. It is
// safe to call while the program's segments are unmapped and never returns.
func abortf(format string, args ...uint64) {
	var buf [256]byte
	msg := appendFormat(buf[:0], format, args...)
	if len(msg) > 0 {
		unix.RawSyscall(unix.SYS_WRITE, 2, uintptr(unsafe.Pointer(&msg[0])), uintptr(len(msg)))
	}

	pid, _, _ := unix.RawSyscall(unix.SYS_GETPID, 0, 0, 0)
	unix.RawSyscall(unix.SYS_KILL, pid, uintptr(unix.SIGABRT), 0)

	// The signal should have killed us; make termination unconditional.
	unix.RawSyscall(unix.SYS_EXIT_GROUP, 128+uintptr(unix.SIGABRT), 0, 0)
	for {
	}
}
