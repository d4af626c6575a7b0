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
	"testing"
)

func encodeAuxv(entries map[uint64]uint64) []byte {
	var out []byte
	for tag, val := range entries {
		var e [16]byte
		binary.LittleEndian.PutUint64(e[0:], tag)
		binary.LittleEndian.PutUint64(e[8:], val)
		out = append(out, e[:]...)
	}
	var null [16]byte
	return append(out, null[:]...)
}

func TestParseAuxv(t *testing.T) {
	for _, tc := range []struct {
		name     string
		entries  map[uint64]uint64
		wantAddr uint64
		wantNum  uint64
		wantErr  bool
	}{
		{
			name: "valid",
			entries: map[uint64]uint64{
				atPhdr:  0x400040,
				atPhent: progHeaderSize,
				atPhnum: 9,
			},
			wantAddr: 0x400040,
			wantNum:  9,
		},
		{
			name: "missing header address",
			entries: map[uint64]uint64{
				atPhent: progHeaderSize,
				atPhnum: 9,
			},
			wantErr: true,
		},
		{
			name: "missing header count",
			entries: map[uint64]uint64{
				atPhdr:  0x400040,
				atPhent: progHeaderSize,
			},
			wantErr: true,
		},
		{
			// The ELF32 entry size: a 32 bit image on a host this
			// library cannot analyze.
			name: "unsupported header entry size",
			entries: map[uint64]uint64{
				atPhdr:  0x400040,
				atPhent: 32,
				atPhnum: 9,
			},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			addr, num, err := parseAuxv(encodeAuxv(tc.entries))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseAuxv = (%#x, %d, nil), want error", addr, num)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAuxv: %v", err)
			}
			if addr != tc.wantAddr || num != tc.wantNum {
				t.Errorf("parseAuxv = (%#x, %d), want (%#x, %d)", addr, num, tc.wantAddr, tc.wantNum)
			}
		})
	}
}

func TestSelfImage(t *testing.T) {
	img, err := SelfImage()
	if err != nil {
		t.Fatalf("SelfImage: %v", err)
	}
	var loads int
	for _, ph := range img.Phdrs {
		if ph.Type == elf.PT_LOAD {
			loads++
		}
	}
	if loads == 0 {
		t.Errorf("no PT_LOAD headers in own image: %+v", img.Phdrs)
	}
}
