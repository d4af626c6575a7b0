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
)

// The structure layouts below are the ELF64 little-endian variants, the
// only image format supported. Hosts whose program headers have a
// different size are rejected when the image is located.
const (
	// WordBits is the pointer width of the host, used in shared backing
	// file names.
	WordBits = 64

	progHeaderSize = 56 // sizeof(Elf64_Phdr)
	dynEntrySize   = 16 // sizeof(Elf64_Dyn)
	symEntrySize   = elf.Sym64Size
)

func decodeProgHeader(b []byte) elf.ProgHeader {
	return elf.ProgHeader{
		Type:   elf.ProgType(binary.LittleEndian.Uint32(b[0:])),
		Flags:  elf.ProgFlag(binary.LittleEndian.Uint32(b[4:])),
		Off:    binary.LittleEndian.Uint64(b[8:]),
		Vaddr:  binary.LittleEndian.Uint64(b[16:]),
		Paddr:  binary.LittleEndian.Uint64(b[24:]),
		Filesz: binary.LittleEndian.Uint64(b[32:]),
		Memsz:  binary.LittleEndian.Uint64(b[40:]),
		Align:  binary.LittleEndian.Uint64(b[48:]),
	}
}

func decodeDyn(b []byte) elf.Dyn64 {
	return elf.Dyn64{
		Tag: int64(binary.LittleEndian.Uint64(b[0:])),
		Val: binary.LittleEndian.Uint64(b[8:]),
	}
}

func decodeSym(b []byte) elf.Sym64 {
	return elf.Sym64{
		Name:  binary.LittleEndian.Uint32(b[0:]),
		Info:  b[4],
		Other: b[5],
		Shndx: binary.LittleEndian.Uint16(b[6:]),
		Value: binary.LittleEndian.Uint64(b[8:]),
		Size:  binary.LittleEndian.Uint64(b[16:]),
	}
}
