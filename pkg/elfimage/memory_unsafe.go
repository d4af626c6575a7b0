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
	"fmt"
	"unsafe"
)

// liveMemory implements Memory with direct loads from the current process's
// address space.
type liveMemory struct{}

// LiveMemory returns a Memory reading the current process's address space.
// Callers are responsible for only passing addresses that are actually
// mapped; a bad address faults rather than erroring.
func LiveMemory() Memory {
	return liveMemory{}
}

// Slice implements Memory.Slice.
func (liveMemory) Slice(addr uintptr, length uint64) ([]byte, error) {
	if addr == 0 {
		return nil, fmt.Errorf("nil address")
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length)), nil
}
