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

package remap

import (
	"testing"

	"hugelink.dev/hugelink/pkg/elfimage"
)

func TestRemapRequiresBacking(t *testing.T) {
	// An unprepared descriptor must be rejected before any address-space
	// mutation; the error path is ordinary and survivable.
	e := New(0x200000)
	segs := []*elfimage.Segment{
		{Vaddr: 0x400000, Memsz: 0x200000, Index: 0},
	}
	if err := e.Remap(segs); err == nil {
		t.Fatal("Remap accepted a segment without a backing file")
	}
}

func TestRemapConsumedOnce(t *testing.T) {
	e := New(0x200000)
	if err := e.Remap(nil); err != nil {
		t.Fatalf("empty remap: %v", err)
	}
	if err := e.Remap(nil); err == nil {
		t.Fatal("second Remap call should be rejected")
	}
}

func TestRemapErrorLeavesEngineReusable(t *testing.T) {
	// Validation failures happen before the engine consumes the table,
	// so a corrected table may still be remapped.
	e := New(0x200000)
	segs := []*elfimage.Segment{{Vaddr: 0x400000, Memsz: 0x200000}}
	if err := e.Remap(segs); err == nil {
		t.Fatal("Remap accepted a segment without a backing file")
	}
	if err := e.Remap(nil); err != nil {
		t.Fatalf("Remap after validation failure: %v", err)
	}
}
