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

package backing

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hugelink.dev/hugelink/pkg/elfimage"
)

// countingMemory counts materializations: Materialize reads the file-backed
// range exactly once per run.
type countingMemory struct {
	inner        elfimage.Memory
	segVaddr     uintptr
	segFilesz    uint64
	materialized atomic.Int64
}

func (m *countingMemory) Slice(addr uintptr, length uint64) ([]byte, error) {
	if addr == m.segVaddr && length == m.segFilesz {
		m.materialized.Add(1)
	}
	return m.inner.Slice(addr, length)
}

func testCache(t *testing.T, seg *elfimage.Segment, mem elfimage.Memory) *SharedCache {
	t.Helper()
	c, err := OpenSharedCache(filepath.Join(t.TempDir(), "cache"), "prog", Params{
		PageSize: 0x1000,
		Mem:      mem,
	})
	if err != nil {
		t.Fatalf("OpenSharedCache: %v", err)
	}
	c.StaleTimeout = 50 * time.Millisecond
	c.MaxWait = 10 * time.Second
	return c
}

func TestOpenSharedCacheValidation(t *testing.T) {
	params := Params{PageSize: 0x1000, Mem: elfimage.NewSparseMemory()}

	t.Run("fresh directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "cache")
		if _, err := OpenSharedCache(dir, "prog", params); err != nil {
			t.Fatalf("OpenSharedCache: %v", err)
		}
		fi, err := os.Lstat(dir)
		if err != nil {
			t.Fatalf("Lstat: %v", err)
		}
		if perm := fi.Mode().Perm(); perm != 0700 {
			t.Errorf("directory mode %#o, want 0700", perm)
		}
	})

	t.Run("group writable", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "cache")
		if err := os.Mkdir(dir, 0777); err != nil {
			t.Fatalf("Mkdir: %v", err)
		}
		// Force the mode in case umask stripped the group bits.
		if err := os.Chmod(dir, 0770); err != nil {
			t.Fatalf("Chmod: %v", err)
		}
		if _, err := OpenSharedCache(dir, "prog", params); err == nil {
			t.Fatal("OpenSharedCache accepted a group-writable directory")
		}
	})

	t.Run("not a directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache")
		if err := os.WriteFile(path, nil, 0600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := OpenSharedCache(path, "prog", params); err == nil {
			t.Fatal("OpenSharedCache accepted a plain file")
		}
	})
}

func TestAcquireMaterializesExactlyOnce(t *testing.T) {
	seg, sparse := testSegment(0x1000, 0x1000)
	mem := &countingMemory{inner: sparse, segVaddr: seg.Vaddr, segFilesz: seg.Filesz}
	c := testCache(t, seg, mem)

	const participants = 8
	files := make([]*os.File, participants)
	errs := make([]error, participants)
	var wg sync.WaitGroup
	for i := 0; i < participants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			files[i], errs[i] = c.Acquire(seg)
		}(i)
	}
	wg.Wait()

	if got := mem.materialized.Load(); got != 1 {
		t.Errorf("segment was materialized %d times, want 1", got)
	}
	want, _ := sparse.Slice(seg.Vaddr, seg.Filesz)
	for i := 0; i < participants; i++ {
		if errs[i] != nil {
			t.Fatalf("participant %d: %v", i, errs[i])
		}
		got := make([]byte, seg.Filesz)
		if _, err := files[i].ReadAt(got, 0); err != nil {
			t.Fatalf("participant %d read: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("participant %d observed incomplete backing content", i)
		}
		files[i].Close()
	}

	// Only the published file remains; the election token is gone.
	if _, err := os.Lstat(c.fileName(seg) + tmpSuffix); err == nil {
		t.Errorf("temporary file still present after publication")
	}
	if _, err := os.Lstat(c.fileName(seg)); err != nil {
		t.Errorf("final file missing: %v", err)
	}
}

func TestAcquireReusesPublishedFile(t *testing.T) {
	seg, sparse := testSegment(0x1000, 0x1000)
	mem := &countingMemory{inner: sparse, segVaddr: seg.Vaddr, segFilesz: seg.Filesz}
	c := testCache(t, seg, mem)

	f1, err := c.Acquire(seg)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	f1.Close()
	f2, err := c.Acquire(seg)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	f2.Close()

	if got := mem.materialized.Load(); got != 1 {
		t.Errorf("segment was materialized %d times, want 1", got)
	}
}

func TestAcquireWaitsForPublication(t *testing.T) {
	// A peer holds the election token but has not published yet; our
	// exclusive create fails with "exists" and the final open with "not
	// found", forcing retry cycles until the peer publishes.
	seg, sparse := testSegment(0x1000, 0x1000)
	c := testCache(t, seg, sparse)

	final := c.fileName(seg)
	tmp := final + tmpSuffix
	if err := os.WriteFile(tmp, nil, 0600); err != nil {
		t.Fatalf("creating peer temp file: %v", err)
	}

	published := []byte("peer-populated content")
	go func() {
		time.Sleep(200 * time.Millisecond)
		// Publish the way a real peer would: write-then-rename.
		peer := tmp + ".peer"
		os.WriteFile(peer, published, 0600)
		os.Rename(peer, final)
		os.Remove(tmp)
	}()

	f, err := c.Acquire(seg)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer f.Close()
	got := make([]byte, len(published))
	if _, err := f.ReadAt(got, 0); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, published) {
		t.Errorf("got %q, want %q", got, published)
	}
}

func TestAcquireReapsStaleTemp(t *testing.T) {
	// A temp file with no live flock holder and an old mtime is debris
	// from a crashed preparer; a waiter removes it and runs the election
	// itself instead of stalling forever.
	seg, sparse := testSegment(0x1000, 0x1000)
	c := testCache(t, seg, sparse)

	tmp := c.fileName(seg) + tmpSuffix
	if err := os.WriteFile(tmp, nil, 0600); err != nil {
		t.Fatalf("creating stale temp file: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(tmp, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	f, err := c.Acquire(seg)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	f.Close()
	if _, err := os.Lstat(c.fileName(seg)); err != nil {
		t.Errorf("final file missing after stale reap: %v", err)
	}
}

func TestAcquireRefusesWritableSegment(t *testing.T) {
	seg, sparse := testSegment(0x1000, 0x1000)
	seg.Prot |= 2 // PROT_WRITE
	c := testCache(t, seg, sparse)
	if _, err := c.Acquire(seg); err == nil {
		t.Fatal("Acquire accepted a writable segment")
	}
}
