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

package backing

import (
	"fmt"
	"os"

	"hugelink.dev/hugelink/pkg/elfimage"
	"hugelink.dev/hugelink/pkg/hugetlbfs"
)

// Unlinked materializes seg into a fresh anonymous huge-page file that no
// other process can observe or reuse. It needs no cross-process
// coordination and either fully succeeds or fails without side effects.
func Unlinked(seg *elfimage.Segment, params Params) (*os.File, error) {
	f, err := hugetlbfs.UnlinkedFile()
	if err != nil {
		return nil, fmt.Errorf("obtaining unlinked huge-page file: %v", err)
	}
	if err := Materialize(seg, f, params); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
