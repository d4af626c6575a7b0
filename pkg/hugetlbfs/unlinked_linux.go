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

package hugetlbfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// UnlinkedFile returns a writable huge-page backed file with no directory
// entry, so it can never be observed or reused by another process.
//
// memfd_create(MFD_HUGETLB) is preferred since it needs no mount at all.
// Older kernels fall back to an O_TMPFILE, and finally to a
// create-then-unlink temporary, both on the hugetlbfs mount.
func UnlinkedFile() (*os.File, error) {
	fd, err := unix.MemfdCreate("hugelink", unix.MFD_CLOEXEC|unix.MFD_HUGETLB)
	if err == nil {
		return os.NewFile(uintptr(fd), "memfd:hugelink"), nil
	}

	mount, merr := FindMount()
	if merr != nil {
		return nil, fmt.Errorf("memfd_create: %v; %v", err, merr)
	}

	f, terr := os.OpenFile(mount, os.O_RDWR|unix.O_TMPFILE, 0600)
	if terr == nil {
		return f, nil
	}

	f, cerr := os.CreateTemp(mount, "hugelink.*")
	if cerr != nil {
		return nil, fmt.Errorf("no unlinked file on %s: %v", mount, cerr)
	}
	if uerr := os.Remove(f.Name()); uerr != nil {
		f.Close()
		return nil, fmt.Errorf("unlink %s: %v", f.Name(), uerr)
	}
	return f, nil
}
