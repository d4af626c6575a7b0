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

// Package remap tears down the normal-page mappings of promoted segments
// and re-establishes them as huge-page mappings at identical addresses.
package remap

import (
	"fmt"

	"golang.org/x/sys/unix"

	"hugelink.dev/hugelink/pkg/elfimage"
	"hugelink.dev/hugelink/pkg/memutil"
)

// Engine replaces the address-space mappings of a descriptor table. It may
// be used at most once; the table it consumes must be fully prepared.
type Engine struct {
	pageSize uint64
	done     bool
}

// New returns an Engine mapping at the given huge page size.
func New(pageSize uint64) *Engine {
	return &Engine{pageSize: pageSize}
}

// Remap atomically replaces every segment's current mapping with a private
// huge-page mapping of its backing file at the identical virtual address.
//
// All validation happens before the first unmap. Once the unmap pass has
// started there is no way back: any failure to re-establish a mapping
// terminates the process through the unmapped-safe abort path, because the
// state needed for ordinary recovery is gone.
func (e *Engine) Remap(segs []*elfimage.Segment) error {
	if e.done {
		return fmt.Errorf("remap engine already consumed its table")
	}
	for _, seg := range segs {
		if seg.Backing == nil {
			return fmt.Errorf("segment %d has no backing file", seg.Index)
		}
	}
	e.done = true

	// A deliberately no-effect mapping call, issued so the dynamic
	// resolution of the mapping path happens now, while the data it
	// needs is still mapped. Resolving it lazily inside the transition
	// would fault.
	memutil.MapFile(0, 0, 0, 0, 0, 0)

	// Unmap everything before mapping anything back: some architectures
	// cannot hold normal and huge mappings in the same region until the
	// whole region is clear. Between here and the end of the second loop
	// no code may touch the unmapped data or resolve symbols.
	for _, seg := range segs {
		memutil.Unmap(seg.Vaddr, uintptr(seg.Memsz))
	}

	for i, seg := range segs {
		mapsize := memutil.AlignUp(seg.Memsz, e.pageSize)
		addr, err := memutil.MapFile(seg.Vaddr, uintptr(mapsize),
			uintptr(seg.Prot), unix.MAP_PRIVATE|unix.MAP_FIXED,
			uintptr(seg.Backing.FD()), 0)
		if err != nil {
			errno, _ := err.(unix.Errno)
			abortf("failed to map hugepage segment %u: %p-%p (errno=%u)\n",
				uint64(i), uint64(seg.Vaddr), uint64(seg.Vaddr)+mapsize, uint64(errno))
		}
		if addr != seg.Vaddr {
			abortf("mapped hugepage segment %u (%p-%p) at wrong address %p\n",
				uint64(i), uint64(seg.Vaddr), uint64(seg.Vaddr)+mapsize, uint64(addr))
		}
	}
	// The segments are all back; static data is safe to touch again.
	return nil
}
