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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"

	"hugelink.dev/hugelink/pkg/elfimage"
	"hugelink.dev/hugelink/pkg/log"
)

// tmpSuffix marks a backing file that is still being prepared. The rename
// dropping the suffix is the publication point: a file visible under its
// final name is always fully populated.
const tmpSuffix = ".tmp"

// SharedCache locates or race-safely creates populated backing files in a
// directory shared by unrelated processes running the same binary.
//
// Cross-process mutual exclusion uses no lock manager: creating the
// temporary name with O_EXCL elects the preparer, and the atomic rename to
// the final name publishes the finished file. A preparer additionally holds
// a flock on its temporary file so that peers can tell a crashed preparer
// (lock acquirable) from a live one.
type SharedCache struct {
	dir     string
	program string
	params  Params

	// StaleTimeout is how old an unlocked temporary file must be before
	// waiters treat its preparer as dead and remove it.
	StaleTimeout time.Duration

	// MaxWait bounds how long Acquire waits for another process to
	// publish before giving up; the caller then falls back to an
	// unlinked file.
	MaxWait time.Duration
}

// OpenSharedCache validates dir and returns a cache using it. The directory
// must be owned by the current user and not group/other writable; it is
// created mode 0700 if absent. Any violation is a configuration error that
// disables sharing for the whole run.
func OpenSharedCache(dir, program string, params Params) (*SharedCache, error) {
	if err := os.Mkdir(dir, 0700); err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("creating share directory %s: %v", dir, err)
	}

	fi, err := os.Lstat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %v", dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("no stat information for %s", dir)
	}
	if int(st.Uid) != os.Getuid() {
		return nil, fmt.Errorf("%s has wrong owner (uid=%d instead of %d)", dir, st.Uid, os.Getuid())
	}
	if fi.Mode().Perm()&0022 != 0 {
		return nil, fmt.Errorf("%s has bad permissions %#o", dir, fi.Mode().Perm())
	}

	return &SharedCache{
		dir:          dir,
		program:      program,
		params:       params,
		StaleTimeout: time.Minute,
		MaxWait:      2 * time.Minute,
	}, nil
}

// fileName returns the final path for seg's shared backing file. The name is
// stable across processes running the same binary: program basename, host
// pointer width and program header index.
func (c *SharedCache) fileName(seg *elfimage.Segment) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%d_%d", c.program, elfimage.WordBits, seg.Index))
}

// Acquire returns an open descriptor for a fully populated backing file for
// seg, materializing it if this process wins the preparer election. Exactly
// one participant populates any given file; the rest either reuse it or wait
// for its publication.
func (c *SharedCache) Acquire(seg *elfimage.Segment) (*os.File, error) {
	if seg.Writable() {
		return nil, fmt.Errorf("segment %d is writable and may not be shared", seg.Index)
	}

	final := c.fileName(seg)
	tmp := final + tmpSuffix

	var result *os.File
	op := func() error {
		// NB: mode is modified by umask.
		fdx, errx := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0666)
		fds, errs := os.Open(final)

		if errs == nil {
			// Got an already-prepared file. If we also won the
			// preparer election, nobody needs the token anymore.
			if errx == nil {
				fdx.Close()
				if err := os.Remove(tmp); err != nil {
					log.Errorf("unable to clean up unneeded file %s: %v", tmp, err)
				}
			} else if !errors.Is(errx, fs.ErrExist) {
				log.Warningf("unexpected failure on exclusive open of %s: %v", tmp, errx)
			}
			result = fds
			return nil
		}

		if errx == nil {
			// We are the preparer.
			if !errors.Is(errs, fs.ErrNotExist) {
				log.Warningf("unexpected failure on shared open of %s: %v", final, errs)
			}
			if err := c.prepare(seg, fdx, tmp, final); err != nil {
				return backoff.Permanent(err)
			}
			result = fdx
			return nil
		}

		// Both opens failed: another process is preparing but has not
		// published yet, or died trying.
		c.reapStale(tmp)
		return fmt.Errorf("backing file %s still being prepared", final)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = c.MaxWait
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return result, nil
}

// prepare populates the temporary file and publishes it under the final
// name. On failure the temporary file is removed so that a later process
// can run the election again.
func (c *SharedCache) prepare(seg *elfimage.Segment, f *os.File, tmp, final string) error {
	// The flock marks the preparer as alive; it dies with the process.
	lk := flock.New(tmp)
	if locked, err := lk.TryLock(); err != nil || !locked {
		log.Debugf("could not lock own temporary file %s: %v", tmp, err)
	}
	defer lk.Close()

	log.Debugf("got unpopulated shared fd, preparing %s", tmp)
	if err := Materialize(seg, f, c.params); err != nil {
		f.Close()
		c.removeTemp(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		f.Close()
		c.removeTemp(tmp)
		return fmt.Errorf("publishing %s: %v", final, err)
	}
	log.Debugf("prepare succeeded, published %s", final)
	return nil
}

func (c *SharedCache) removeTemp(tmp string) {
	if err := os.Remove(tmp); err != nil {
		log.Errorf("unable to clean up temp file %s on failure: %v", tmp, err)
	}
}

// reapStale removes tmp if its preparer has evidently died: the file is
// older than StaleTimeout and its flock can be taken, which a live preparer
// holds until it exits. The age gate covers the preparer's window between
// creating the file and locking it.
func (c *SharedCache) reapStale(tmp string) {
	fi, err := os.Lstat(tmp)
	if err != nil || time.Since(fi.ModTime()) < c.StaleTimeout {
		return
	}
	lk := flock.New(tmp)
	defer lk.Close()
	if locked, err := lk.TryLock(); err != nil || !locked {
		return
	}
	log.Warningf("removing stale temporary file %s (preparer died?)", tmp)
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Errorf("unable to remove stale temp file %s: %v", tmp, err)
	}
}
