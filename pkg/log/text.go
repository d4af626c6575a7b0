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

package log

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// TextEmitter logs messages in a compact single-line text format:
//
//	Lmmdd hh:mm:ss.uuuuuu file:line] msg...
//
// where L is a single character for the level ('E', 'W', 'I' or 'D').
type TextEmitter struct {
	*Writer
}

// Emit implements Emitter.Emit.
func (e TextEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	// Level.
	prefix := byte('?')
	switch level {
	case Error:
		prefix = byte('E')
	case Warning:
		prefix = byte('W')
	case Info:
		prefix = byte('I')
	case Debug:
		prefix = byte('D')
	}

	// Timestamp.
	_, month, day := timestamp.Date()
	hour, minute, second := timestamp.Clock()
	microsecond := int(timestamp.Nanosecond() / 1000)

	// The caller, for debugging the library itself.
	file := "???"
	line := 0
	if _, f, l, ok := runtime.Caller(depth + 1); ok {
		if slash := strings.LastIndexByte(f, byte('/')); slash >= 0 {
			f = f[slash+1:] // Trim any directory path from the file.
		}
		file = f
		line = l
	}

	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(e.Writer, "%c%02d%02d %02d:%02d:%02d.%06d %s:%d] %s\n",
		prefix, int(month), day, hour, minute, second, microsecond, file, line, message)
}
