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

// Package backing obtains and populates huge-page backed files for
// promotable segments, either privately or shared across processes.
package backing

import (
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"

	"hugelink.dev/hugelink/pkg/elfimage"
	"hugelink.dev/hugelink/pkg/log"
	"hugelink.dev/hugelink/pkg/memutil"
)

// Params carry the environment a materialization runs in.
type Params struct {
	// PageSize is the huge page size the backing files are sized to.
	PageSize uint64

	// Mem reads the live segment contents being copied.
	Mem elfimage.Memory

	// Verify enables a digest comparison of every copied range against
	// the live memory it was copied from.
	Verify bool
}

// PrepareSize returns the number of bytes of backing storage that must be
// populated for seg: everything up to the end of the copy window if there is
// one, else just the file-backed bytes, rounded up to the huge page size.
func PrepareSize(seg *elfimage.Segment, pageSize uint64) uint64 {
	if seg.HasExtra() {
		end := uint64(seg.ExtraVaddr-seg.Vaddr) + seg.ExtraSize
		return memutil.AlignUp(end, pageSize)
	}
	return memutil.AlignUp(seg.Filesz, pageSize)
}

// Materialize copies seg's file-backed bytes and its copy window (if any)
// into f through a temporary ordinary mapping. Bytes outside both ranges are
// left zero. Any mapping or copy failure is a hard failure for the segment;
// there are no retry semantics here.
func Materialize(seg *elfimage.Segment, f *os.File, p Params) error {
	size := PrepareSize(seg, p.PageSize)
	if err := f.Truncate(int64(size)); err != nil {
		return fmt.Errorf("truncate backing file to %#x: %v", size, err)
	}

	m, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		return fmt.Errorf("map backing file for copy: %v", err)
	}
	defer m.Unmap()

	// Copying only filesz bytes rather than memsz is what makes the
	// minimal copy window worthwhile; everything meaningful outside
	// filesz must be inside the window.
	src, err := p.Mem.Slice(seg.Vaddr, seg.Filesz)
	if err != nil {
		return fmt.Errorf("read segment %d contents: %v", seg.Index, err)
	}
	copy(m[:seg.Filesz], src)
	log.Debugf("copied %#x file-backed bytes from %#x", seg.Filesz, seg.Vaddr)

	if seg.HasExtra() {
		off := uint64(seg.ExtraVaddr - seg.Vaddr)
		extra, err := p.Mem.Slice(seg.ExtraVaddr, seg.ExtraSize)
		if err != nil {
			return fmt.Errorf("read segment %d copy window: %v", seg.Index, err)
		}
		copy(m[off:off+seg.ExtraSize], extra)
		log.Debugf("copied extra %#x bytes from %#x", seg.ExtraSize, seg.ExtraVaddr)
	}

	if p.Verify {
		verifyCopy(seg, m, p.Mem)
	}
	return nil
}

// verifyCopy recomputes a digest of every copied range in the backing file
// and compares it with the live bytes. A mismatch means the copy itself went
// wrong and the resulting mapping would corrupt the program.
func verifyCopy(seg *elfimage.Segment, m []byte, mem elfimage.Memory) {
	type copyRange struct {
		name     string
		off, len uint64
	}
	ranges := []copyRange{{"file-backed", 0, seg.Filesz}}
	if seg.HasExtra() {
		ranges = append(ranges, copyRange{"copy window", uint64(seg.ExtraVaddr - seg.Vaddr), seg.ExtraSize})
	}
	for _, r := range ranges {
		src, err := mem.Slice(seg.Vaddr+uintptr(r.off), r.len)
		if err != nil {
			log.Debugf("verify: cannot read live %s range: %v", r.name, err)
			continue
		}
		want := xxhash.Sum64(src)
		got := xxhash.Sum64(m[r.off : r.off+r.len])
		if got != want {
			log.Warningf("segment %d %s range digest mismatch: %#x != %#x", seg.Index, r.name, got, want)
		} else {
			log.Debugf("segment %d %s range digest %#x ok", seg.Index, r.name, got)
		}
	}
}
