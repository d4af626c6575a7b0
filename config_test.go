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

package hugelink

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseConfig(t *testing.T) {
	for _, test := range []struct {
		name string
		env  map[string]string
		want Config
	}{
		{
			name: "defaults",
			env:  nil,
			want: Config{MinimalCopy: true},
		},
		{
			name: "elfmap disabled",
			env:  map[string]string{"HUGETLB_ELFMAP": "no"},
			want: Config{Disabled: true, MinimalCopy: true},
		},
		{
			name: "elfmap disabled case insensitive",
			env:  map[string]string{"HUGETLB_ELFMAP": "NO"},
			want: Config{Disabled: true, MinimalCopy: true},
		},
		{
			name: "elfmap other values ignored",
			env:  map[string]string{"HUGETLB_ELFMAP": "yes"},
			want: Config{MinimalCopy: true},
		},
		{
			name: "preload marker disables",
			env:  map[string]string{"LD_PRELOAD": "/usr/lib/libhugelink.so"},
			want: Config{Disabled: true, MinimalCopy: true},
		},
		{
			name: "unrelated preload ignored",
			env:  map[string]string{"LD_PRELOAD": "/usr/lib/libjemalloc.so"},
			want: Config{MinimalCopy: true},
		},
		{
			name: "minimal copy disabled",
			env:  map[string]string{"HUGETLB_MINIMAL_COPY": "no"},
			want: Config{},
		},
		{
			name: "sharing on",
			env:  map[string]string{"HUGETLB_SHARE": "1"},
			want: Config{MinimalCopy: true, Sharing: true},
		},
		{
			name: "sharing off",
			env:  map[string]string{"HUGETLB_SHARE": "0"},
			want: Config{MinimalCopy: true},
		},
		{
			name: "deprecated writable sharing rejected",
			env:  map[string]string{"HUGETLB_SHARE": "2"},
			want: Config{MinimalCopy: true},
		},
		{
			name: "out of range sharing rejected",
			env:  map[string]string{"HUGETLB_SHARE": "7"},
			want: Config{MinimalCopy: true},
		},
		{
			name: "junk sharing rejected",
			env:  map[string]string{"HUGETLB_SHARE": "banana"},
			want: Config{MinimalCopy: true},
		},
		{
			name: "debug enables extra checking",
			env:  map[string]string{"HUGETLB_DEBUG": "1"},
			want: Config{MinimalCopy: true, ExtraChecking: true},
		},
		{
			name: "share path",
			env:  map[string]string{"HUGETLB_SHARE_PATH": "/mnt/huge/cache"},
			want: Config{MinimalCopy: true, SharePath: "/mnt/huge/cache"},
		},
		{
			name: "combined",
			env: map[string]string{
				"HUGETLB_SHARE":      "1",
				"HUGETLB_SHARE_PATH": "/mnt/huge",
				"HUGETLB_DEBUG":      "y",
			},
			want: Config{
				MinimalCopy:   true,
				Sharing:       true,
				SharePath:     "/mnt/huge",
				ExtraChecking: true,
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got := parseConfig(envMap(test.env))
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("parseConfig: unexpected config (-want +got):\n%s", diff)
			}
		})
	}
}
