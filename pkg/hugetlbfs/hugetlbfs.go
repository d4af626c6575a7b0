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

// Package hugetlbfs locates the host's hugetlbfs mount and provides
// huge-page backed files.
package hugetlbfs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrNoMount is returned when no hugetlbfs filesystem is mounted.
var ErrNoMount = fmt.Errorf("no hugetlbfs mount found")

// IsHugetlbfs returns whether path resides on a hugetlbfs filesystem.
func IsHugetlbfs(path string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false, fmt.Errorf("statfs %s: %v", path, err)
	}
	return st.Type == unix.HUGETLBFS_MAGIC, nil
}

// parseMounts scans a mounts-format stream (see proc(5)) and returns the
// mount point of the first hugetlbfs entry.
func parseMounts(r io.Reader) (string, error) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		// Fields: device mountpoint fstype options dump pass.
		fields := strings.Fields(s.Text())
		if len(fields) < 3 {
			continue
		}
		if fields[2] == "hugetlbfs" {
			return fields[1], nil
		}
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return "", ErrNoMount
}

// FindMount returns the mount point of a hugetlbfs filesystem. The
// HUGETLB_PATH environment variable overrides discovery via /proc/mounts,
// provided it actually names a hugetlbfs directory.
func FindMount() (string, error) {
	if env := os.Getenv("HUGETLB_PATH"); env != "" {
		ok, err := IsHugetlbfs(env)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("HUGETLB_PATH %s is not on a hugetlbfs filesystem", env)
		}
		return env, nil
	}

	f, err := os.Open("/proc/mounts")
	if err != nil {
		return "", fmt.Errorf("open /proc/mounts: %v", err)
	}
	defer f.Close()
	return parseMounts(f)
}

// parseMeminfo extracts the default huge page size in bytes from a
// meminfo-format stream ("Hugepagesize:    2048 kB").
func parseMeminfo(r io.Reader) (uint64, error) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, "Hugepagesize:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[2] != "kB" {
			return 0, fmt.Errorf("malformed meminfo line %q", line)
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed meminfo line %q: %v", line, err)
		}
		return kb * 1024, nil
	}
	if err := s.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("no Hugepagesize line in meminfo")
}

var (
	pageSizeOnce sync.Once
	pageSize     uint64
	pageSizeErr  error
)

// PageSize returns the host's default huge page size in bytes. The result of
// the first successful read of /proc/meminfo is cached.
func PageSize() (uint64, error) {
	pageSizeOnce.Do(func() {
		f, err := os.Open("/proc/meminfo")
		if err != nil {
			pageSizeErr = fmt.Errorf("open /proc/meminfo: %v", err)
			return
		}
		defer f.Close()
		pageSize, pageSizeErr = parseMeminfo(f)
	})
	return pageSize, pageSizeErr
}
