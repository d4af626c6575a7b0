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
)

// Image is the loaded ELF image under analysis.
type Image struct {
	// Phdrs are the image's program headers, with link-time addresses.
	Phdrs []elf.ProgHeader

	// Bias is the load bias: the delta between link-time virtual
	// addresses in Phdrs and runtime addresses. Zero for non-PIE
	// executables.
	Bias uint64

	// Mem reads the image's address space.
	Mem Memory
}

// addr converts a link-time virtual address to a runtime address.
func (img *Image) addr(vaddr uint64) uintptr {
	return uintptr(vaddr + img.Bias)
}
