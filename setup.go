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
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"hugelink.dev/hugelink/pkg/backing"
	"hugelink.dev/hugelink/pkg/elfimage"
	"hugelink.dev/hugelink/pkg/fd"
	"hugelink.dev/hugelink/pkg/hugetlbfs"
	"hugelink.dev/hugelink/pkg/log"
	"hugelink.dev/hugelink/pkg/remap"
)

var setupOnce sync.Once

// SetupFromEnv runs Setup exactly once with environment-derived
// configuration. Failures leave the process on its original mappings and
// are reported as warnings; the host program keeps running either way.
func SetupFromEnv() {
	setupOnce.Do(func() {
		if err := Setup(ConfigFromEnv()); err != nil {
			log.Warningf("hugepage segment remapping abandoned: %v", err)
		}
	})
}

// Setup promotes the marked segments of the running executable onto huge
// pages. It scans the program headers, prepares a backing file for every
// marked segment, and only then replaces the mappings. An error at any
// point before the replacement leaves the address space untouched.
func Setup(cfg Config) error {
	if cfg.Disabled {
		return nil
	}

	img, err := elfimage.SelfImage()
	if err != nil {
		return fmt.Errorf("locating own program headers: %v", err)
	}

	segs, err := elfimage.Scan(img, elfimage.Options{
		MinimalCopy:   cfg.MinimalCopy,
		ExtraChecking: cfg.ExtraChecking,
		SentinelEnd:   cfg.SentinelEnd,
	})
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		log.Debugf("no segments marked for hugepages")
		return nil
	}

	pageSize, err := hugetlbfs.PageSize()
	if err != nil {
		return fmt.Errorf("determining huge page size: %v", err)
	}

	params := backing.Params{
		PageSize: pageSize,
		Mem:      img.Mem,
		Verify:   cfg.ExtraChecking,
	}

	var cache *backing.SharedCache
	if cfg.Sharing {
		// A bad share directory disables promotion rather than
		// silently degrading to private files; the operator asked
		// for sharing and should hear that it is not happening.
		cache, err = openShareCache(cfg, params)
		if err != nil {
			return fmt.Errorf("shared backing directory: %v", err)
		}
	}

	// Every backing file must exist before the first mapping is
	// dropped. Once the engine starts there is no way back.
	for _, seg := range segs {
		f, err := obtainBacking(seg, cache, params)
		if err != nil {
			return fmt.Errorf("preparing %s: %v", seg, err)
		}
		b, err := fd.NewFromFile(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("segment %d backing fd: %v", seg.Index, err)
		}
		seg.Backing = b
	}

	return remap.New(pageSize).Remap(segs)
}

// obtainBacking prepares the backing file for one segment. Read-only
// segments go through the shared cache when sharing is on; anything else,
// and any cache failure, falls back to a private unlinked file.
func obtainBacking(seg *elfimage.Segment, cache *backing.SharedCache, params backing.Params) (*os.File, error) {
	if cache != nil && !seg.Writable() {
		f, err := cache.Acquire(seg)
		if err == nil {
			return f, nil
		}
		log.Warningf("segment %d: shared backing unavailable, using private copy: %v", seg.Index, err)
	}
	return backing.Unlinked(seg, params)
}

// openShareCache resolves and validates the shared backing directory. An
// explicit HUGETLB_SHARE_PATH must already sit on hugetlbfs; otherwise a
// per-user directory is created under the discovered mount.
func openShareCache(cfg Config, params backing.Params) (*backing.SharedCache, error) {
	dir := cfg.SharePath
	if dir != "" {
		ok, err := hugetlbfs.IsHugetlbfs(dir)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s is not on a hugetlbfs filesystem", dir)
		}
	} else {
		mount, err := hugetlbfs.FindMount()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(mount, fmt.Sprintf("elflink-uid-%d", os.Getuid()))
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving executable name: %v", err)
	}
	return backing.OpenSharedCache(dir, filepath.Base(exe), params)
}
