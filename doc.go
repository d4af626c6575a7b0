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

// Package hugelink remaps marked ELF segments of the running executable
// onto huge pages.
//
// A binary opts in at link time by setting a vendor bit in the flags of
// the PT_LOAD program headers it wants promoted. At startup hugelink scans
// its own program headers, copies each marked segment into a file on a
// hugetlbfs filesystem, and replaces the original mappings with huge-page
// mappings of those files. Segments without the bit, and processes without
// a usable hugetlbfs mount, are left alone.
//
// Most programs should not call this package directly; a blank import of
// the autoload subpackage arranges everything:
//
//	import _ "hugelink.dev/hugelink/autoload"
//
// Behavior is tuned through HUGETLB_* environment variables; see
// ConfigFromEnv. Promotion is strictly best effort: any failure before the
// final remapping leaves the process running on its original mappings.
package hugelink
