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

import "fmt"

// Memory provides access to the address space being analyzed. The live
// process implements it with direct loads; tests supply synthetic images.
type Memory interface {
	// Slice returns the length bytes of memory starting at addr. The
	// returned slice aliases the underlying memory.
	Slice(addr uintptr, length uint64) ([]byte, error)
}

// SparseMemory is a Memory over discontiguous in-memory regions. It backs
// synthetic images; the live implementation is in memory_unsafe.go.
type SparseMemory struct {
	regions map[uintptr][]byte
}

// NewSparseMemory returns an empty synthetic Memory.
func NewSparseMemory() *SparseMemory {
	return &SparseMemory{regions: make(map[uintptr][]byte)}
}

// Add places data at addr. Regions must not overlap.
func (m *SparseMemory) Add(addr uintptr, data []byte) {
	m.regions[addr] = data
}

// Slice implements Memory.Slice.
func (m *SparseMemory) Slice(addr uintptr, length uint64) ([]byte, error) {
	for base, data := range m.regions {
		if addr >= base && addr+uintptr(length) <= base+uintptr(len(data)) {
			off := addr - base
			return data[off : off+uintptr(length)], nil
		}
	}
	return nil, fmt.Errorf("no memory at %#x-%#x", addr, addr+uintptr(length))
}
