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

package elfimage

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"hugelink.dev/hugelink/pkg/log"
)

// Options control the scan.
type Options struct {
	// MinimalCopy enables the symbol-derived minimal copy window. When
	// false the whole zero-fill tail is recorded for copying.
	MinimalCopy bool

	// ExtraChecking scans the portion of the zero-fill tail outside the
	// computed copy window and warns about nonzero data found there.
	ExtraChecking bool

	// SentinelEnd is the runtime-supplied boundary address up to which
	// zero-fill data must be preserved regardless of symbol contents.
	// Zero means no sentinel.
	SentinelEnd uintptr
}

// Scan walks the image's program headers and returns a descriptor for every
// LOAD segment marked for huge-page promotion. An empty table means the
// executable is not linked for huge pages and is not an error.
func Scan(img *Image, opts Options) ([]*Segment, error) {
	var segs []*Segment
	for i, ph := range img.Phdrs {
		if ph.Type != elf.PT_LOAD || ph.Flags&PF_LINUX_HUGETLB == 0 {
			continue
		}
		if len(segs) == MaxSegments {
			return nil, ErrTooManySegments
		}
		seg := &Segment{
			Vaddr:  img.addr(ph.Vaddr),
			Filesz: ph.Filesz,
			Memsz:  ph.Memsz,
			Prot:   progProt(ph.Flags),
			Index:  i,
		}
		computeExtra(img, seg, opts)
		log.Debugf("hugepage %v", seg)
		segs = append(segs, seg)
	}
	return segs, nil
}

// computeExtra records the minimal sub-range of seg's zero-fill tail that
// holds runtime-initialized data. Any failure to locate or size the dynamic
// symbol table degrades to copying the entire tail, never to guessing.
func computeExtra(img *Image, seg *Segment, opts Options) {
	tailStart := seg.Vaddr + uintptr(seg.Filesz)
	tailEnd := seg.Vaddr + uintptr(seg.Memsz)
	if seg.Filesz == seg.Memsz {
		return
	}
	fullTail := func() {
		seg.ExtraVaddr = tailStart
		seg.ExtraSize = uint64(tailEnd - tailStart)
	}
	if !opts.MinimalCopy {
		fullTail()
		return
	}

	symtab, strtab, err := img.dynamicTables()
	if err != nil {
		log.Debugf("unable to perform minimal copy: %v", err)
		fullTail()
		return
	}

	// The entry count is the byte distance to the string table, which our
	// linker scripts place immediately after the symbol table. This is a
	// deployment contract of the surrounding build tooling, not an ELF
	// guarantee; when it does not hold, fall back to the full tail.
	if strtab <= symtab {
		log.Debugf("could not calculate dynamic symbol table size")
		fullTail()
		return
	}
	numsyms := int((strtab - symtab) / symEntrySize)

	raw, err := img.Mem.Slice(symtab, uint64(numsyms)*symEntrySize)
	if err != nil {
		log.Debugf("unable to read dynamic symbol table: %v", err)
		fullTail()
		return
	}

	start, end := tailEnd, tailStart
	found := false
	for i := 0; i < numsyms; i++ {
		sym := decodeSym(raw[i*symEntrySize:])
		v := img.addr(sym.Value)
		if !keepSymbol(sym, v, tailStart, tailEnd) {
			continue
		}
		found = true
		if v < start {
			start = v
		}
		if e := v + uintptr(sym.Size); e > end {
			end = e
		}
	}

	// A symbol's size may extend past the segment; the window never does.
	if end > tailEnd {
		end = tailEnd
	}

	if s := opts.SentinelEnd; s > end && s > tailStart {
		if s > tailEnd {
			s = tailEnd
		}
		if start == tailEnd {
			start = tailStart
		}
		end = s
		found = true
		log.Debugf("sentinel extends copy window end to %#x", end)
	}

	if opts.ExtraChecking {
		checkTail(img, end, tailEnd)
	}

	if found {
		seg.ExtraVaddr = start
		seg.ExtraSize = uint64(end - start)
	}
	// Otherwise nothing in the tail needs copying and ExtraVaddr stays
	// unset.
}

// keepSymbol reports whether sym may require copying: within the half-open
// zero-fill tail, global or weak binding, object type, and nonzero size
// (zero-size symbols are markers carrying no data).
func keepSymbol(sym elf.Sym64, v, tailStart, tailEnd uintptr) bool {
	if v < tailStart || v >= tailEnd {
		return false
	}
	if bind := elf.ST_BIND(sym.Info); bind != elf.STB_GLOBAL && bind != elf.STB_WEAK {
		return false
	}
	if elf.ST_TYPE(sym.Info) != elf.STT_OBJECT {
		return false
	}
	return sym.Size != 0
}

// dynamicTables returns the runtime addresses of the dynamic symbol and
// string tables.
func (img *Image) dynamicTables() (symtab, strtab uintptr, err error) {
	var dyn *elf.ProgHeader
	for i, ph := range img.Phdrs {
		if ph.Type == elf.PT_DYNAMIC {
			dyn = &img.Phdrs[i]
			break
		}
	}
	if dyn == nil {
		return 0, 0, fmt.Errorf("no dynamic segment found")
	}

	raw, err := img.Mem.Slice(img.addr(dyn.Vaddr), dyn.Filesz)
	if err != nil {
		return 0, 0, fmt.Errorf("read dynamic segment: %v", err)
	}
scan:
	for off := 0; off+dynEntrySize <= len(raw); off += dynEntrySize {
		d := decodeDyn(raw[off:])
		switch elf.DynTag(d.Tag) {
		case elf.DT_NULL:
			break scan
		case elf.DT_SYMTAB:
			symtab = img.addr(d.Val)
		case elf.DT_STRTAB:
			strtab = img.addr(d.Val)
		}
	}
	if symtab == 0 {
		return 0, 0, fmt.Errorf("no symbol table found")
	}
	if strtab == 0 {
		return 0, 0, fmt.Errorf("no string table found")
	}
	return symtab, strtab, nil
}

// checkTail looks for nonzero data between start and end, which the copy
// window computation decided may be re-zeroed. Finds indicate a window that
// was computed too small.
func checkTail(img *Image, start, end uintptr) {
	if start >= end {
		return
	}
	raw, err := img.Mem.Slice(start, uint64(end-start))
	if err != nil {
		log.Debugf("unable to check zero-fill tail: %v", err)
		return
	}
	for off := 0; off+8 <= len(raw); off += 8 {
		if v := binary.LittleEndian.Uint64(raw[off:]); v != 0 {
			log.Warningf("nonzero zero-fill data @ %#x: %#x", start+uintptr(off), v)
		}
	}
	for off := len(raw) &^ 7; off < len(raw); off++ {
		if raw[off] != 0 {
			log.Warningf("nonzero zero-fill data @ %#x: %#x", start+uintptr(off), raw[off])
		}
	}
}
