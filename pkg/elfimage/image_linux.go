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

package elfimage

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
)

// Auxiliary vector entry types, see getauxval(3).
const (
	atPhdr  = 3 // AT_PHDR: address of the program headers
	atPhent = 4 // AT_PHENT: size of one program header entry
	atPhnum = 5 // AT_PHNUM: number of program headers
)

// parseAuxv extracts the program header location from a raw auxiliary
// vector, rejecting images whose header entries do not have the supported
// ELF64 layout.
func parseAuxv(auxv []byte) (phdrAddr, phnum uint64, err error) {
	var phent uint64
	for i := 0; i+16 <= len(auxv); i += 16 {
		tag := binary.LittleEndian.Uint64(auxv[i:])
		val := binary.LittleEndian.Uint64(auxv[i+8:])
		switch tag {
		case atPhdr:
			phdrAddr = val
		case atPhent:
			phent = val
		case atPhnum:
			phnum = val
		}
	}
	if phdrAddr == 0 || phnum == 0 {
		return 0, 0, fmt.Errorf("no program header entries in auxv")
	}
	if phent != progHeaderSize {
		return 0, 0, fmt.Errorf("unexpected program header entry size %d", phent)
	}
	return phdrAddr, phnum, nil
}

// SelfImage locates the running process's own loaded image via the
// auxiliary vector and returns it backed by live memory.
func SelfImage() (*Image, error) {
	auxv, err := os.ReadFile("/proc/self/auxv")
	if err != nil {
		return nil, fmt.Errorf("read auxv: %v", err)
	}
	phdrAddr, phnum, err := parseAuxv(auxv)
	if err != nil {
		return nil, err
	}

	mem := LiveMemory()
	raw, err := mem.Slice(uintptr(phdrAddr), phnum*progHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("read program headers: %v", err)
	}

	img := &Image{Mem: mem}
	for i := uint64(0); i < phnum; i++ {
		img.Phdrs = append(img.Phdrs, decodeProgHeader(raw[i*progHeaderSize:]))
	}

	// For PIE binaries the header addresses are relative to the load
	// bias, recovered from where PT_PHDR actually landed.
	for _, ph := range img.Phdrs {
		if ph.Type == elf.PT_PHDR {
			img.Bias = phdrAddr - ph.Vaddr
			break
		}
	}
	return img, nil
}
