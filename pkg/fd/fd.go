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

// Package fd wraps host file descriptors with explicit ownership.
//
// Prepared backing files travel to the remap engine as FDs so that their
// lifetime is decoupled from the os.File they were prepared through.
package fd

import (
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// FD owns a host file descriptor.
//
// It is similar to os.File, except that it provides a Release method which
// relinquishes ownership, which os.File's finalizer does not allow.
type FD struct {
	// fd is accessed atomically so Close and Release can swap it.
	fd int64
}

// New creates a new FD.
//
// New takes ownership of fd.
func New(fd int) *FD {
	if fd < 0 {
		return &FD{-1}
	}
	f := &FD{int64(fd)}
	runtime.SetFinalizer(f, (*FD).Close)
	return f
}

// NewFromFile creates a new FD from an os.File.
//
// NewFromFile does not transfer ownership of the file descriptor (it will be
// duplicated, so both the os.File and FD will eventually need to be closed).
func NewFromFile(file *os.File) (*FD, error) {
	fd, err := unix.Dup(int(file.Fd()))
	// Technically, the runtime may call the finalizer on file as soon as
	// Fd() returns.
	runtime.KeepAlive(file)
	if err != nil {
		return &FD{-1}, err
	}
	return New(fd), nil
}

// Close closes the file descriptor contained in the FD.
//
// Close is safe to call multiple times, but will return an error after the
// first call.
func (f *FD) Close() error {
	runtime.SetFinalizer(f, nil)
	return unix.Close(int(atomic.SwapInt64(&f.fd, -1)))
}

// Release relinquishes ownership of the contained file descriptor.
//
// Concurrent accesses to the FD may fail after Release is called.
func (f *FD) Release() int {
	runtime.SetFinalizer(f, nil)
	return int(atomic.SwapInt64(&f.fd, -1))
}

// FD returns the file descriptor contained in the FD.
func (f *FD) FD() int {
	return int(atomic.LoadInt64(&f.fd))
}
