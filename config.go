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
	"os"
	"strconv"
	"strings"

	"hugelink.dev/hugelink/pkg/log"
)

// Config controls huge-page promotion for the current process. It is built
// once at startup and handed to every phase; nothing mutates it afterwards.
type Config struct {
	// Disabled skips promotion entirely.
	Disabled bool

	// SharePath overrides the directory for shared backing files. It
	// must reside on the huge-page filesystem. Empty means a per-user
	// directory under the discovered hugetlbfs mount.
	SharePath string

	// MinimalCopy enables the symbol-derived minimal copy window
	// instead of copying the whole zero-fill tail.
	MinimalCopy bool

	// Sharing reuses backing files of read-only segments across
	// processes running the same binary.
	Sharing bool

	// ExtraChecking enables the post-copy diagnostics: the nonzero
	// tail scan and backing content digests.
	ExtraChecking bool

	// SentinelEnd is an optional runtime-supplied address bounding the
	// zero-fill data the surrounding runtime itself depends on; see
	// elfimage.Options.
	SentinelEnd uintptr
}

// ConfigFromEnv builds a Config from the HUGETLB_* environment variables.
// HUGETLB_DEBUG additionally raises the log level so the phases below it
// narrate their decisions.
func ConfigFromEnv() Config {
	if os.Getenv("HUGETLB_DEBUG") != "" {
		log.SetLevel(log.Debug)
	}
	return parseConfig(os.Getenv)
}

// parseConfig derives a Config from the given environment lookup.
func parseConfig(getenv func(string) string) Config {
	cfg := Config{MinimalCopy: true}

	if env := getenv("HUGETLB_ELFMAP"); strings.EqualFold(env, "no") {
		log.Debugf("HUGETLB_ELFMAP=%s, not attempting to remap program segments", env)
		cfg.Disabled = true
	}

	// Injecting this library via the dynamic loader conflicts with
	// remapping the segments the loader placed it in.
	if env := getenv("LD_PRELOAD"); strings.Contains(env, "hugelink") {
		log.Warningf("LD_PRELOAD is incompatible with segment remapping; remapping disabled")
		cfg.Disabled = true
	}

	if env := getenv("HUGETLB_MINIMAL_COPY"); strings.EqualFold(env, "no") {
		log.Debugf("HUGETLB_MINIMAL_COPY=%s, disabling filesz copy optimization", env)
		cfg.MinimalCopy = false
	}

	switch env := getenv("HUGETLB_SHARE"); env {
	case "", "0":
	case "1":
		cfg.Sharing = true
		log.Debugf("HUGETLB_SHARE=1, sharing enabled for read-only segments")
	case "2":
		log.Warningf("HUGETLB_SHARE=2: sharing of writable segments is deprecated and disabled")
	default:
		if _, err := strconv.Atoi(env); err != nil {
			log.Warningf("HUGETLB_SHARE=%q is not a number, sharing disabled", env)
		} else {
			log.Warningf("HUGETLB_SHARE=%s not supported, sharing disabled", env)
		}
	}

	if getenv("HUGETLB_DEBUG") != "" {
		log.Debugf("HUGETLB_DEBUG set, enabling extra checking")
		cfg.ExtraChecking = true
	}

	cfg.SharePath = getenv("HUGETLB_SHARE_PATH")
	return cfg
}
