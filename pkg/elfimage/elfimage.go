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

// Package elfimage analyzes the loaded ELF image of the current process and
// selects the program segments that are marked for huge-page promotion.
//
// The analysis is pure: it walks program headers and dynamic-linking
// metadata that are already mapped, performs no I/O, and produces a table of
// segment descriptors consumed by the backing and remap packages.
package elfimage

import (
	"debug/elf"
	"fmt"

	"golang.org/x/sys/unix"

	"hugelink.dev/hugelink/pkg/fd"
)

// PF_LINUX_HUGETLB is the processor-specific program header flag bit that
// marks a LOAD segment for huge-page promotion. It is set at link time by
// the accompanying linker scripts.
const PF_LINUX_HUGETLB elf.ProgFlag = 0x100000

// MaxSegments is the maximum number of promotable segments per executable.
// Finding more than this many invalidates the whole promotion attempt.
const MaxSegments = 2

// ErrTooManySegments is returned by Scan when the executable carries more
// promotable segments than MaxSegments.
var ErrTooManySegments = fmt.Errorf("executable has too many segments marked for hugepage (max %d)", MaxSegments)

// Segment describes one promotable program segment of the loaded image.
//
// Descriptors are created by Scan, given a backing file during preparation,
// and consumed exactly once by the remap engine. They do not outlive process
// startup.
type Segment struct {
	// Vaddr is the virtual base address of the segment as loaded. It is
	// the segment's identity in the address space and never changes.
	Vaddr uintptr

	// Filesz is the number of bytes backed by the binary file; Memsz is
	// the total mapped length. The tail Memsz-Filesz is zero-fill.
	Filesz uint64
	Memsz  uint64

	// ExtraVaddr and ExtraSize delimit the sub-range of the zero-fill
	// tail that holds runtime-initialized data and must be copied along
	// with the file-backed bytes. ExtraVaddr == 0 means the whole tail
	// may be re-zeroed.
	ExtraVaddr uintptr
	ExtraSize  uint64

	// Prot holds the PROT_* permission bits derived from the segment's
	// load flags.
	Prot int

	// Index is the segment's position among the binary's program
	// headers; it derives the stable shared-file name.
	Index int

	// Backing supplies the huge-page backed content for this segment.
	// It is nil until a provider step succeeds, and must be populated
	// before the remap engine runs.
	Backing *fd.FD
}

// HasExtra returns whether a minimal copy window was recorded.
func (s *Segment) HasExtra() bool {
	return s.ExtraVaddr != 0
}

// Writable returns whether the segment is mapped writable. Only read-only
// segments are ever shared across processes.
func (s *Segment) Writable() bool {
	return s.Prot&unix.PROT_WRITE != 0
}

// String implements fmt.Stringer.
func (s *Segment) String() string {
	return fmt.Sprintf("segment %d: %#x-%#x (filesz=%#x, prot=%#x)",
		s.Index, s.Vaddr, s.Vaddr+uintptr(s.Memsz), s.Filesz, s.Prot)
}

func progProt(flags elf.ProgFlag) int {
	prot := 0
	if flags&elf.PF_R != 0 {
		prot |= unix.PROT_READ
	}
	if flags&elf.PF_W != 0 {
		prot |= unix.PROT_WRITE
	}
	if flags&elf.PF_X != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}
