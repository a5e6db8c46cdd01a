// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prefork

import (
	"io"
	"log"
	"strings"
	"sync"
)

// MultiLogger carries the supervisor's own messages.  Every line is written
// to the in-memory Log, and also to the external logger when one is set.
// Lines are handed over one at a time so the external logger applies its
// own prefix and flags to each.
type MultiLogger struct {
	ring io.Writer
	ext  *log.Logger
	log  *log.Logger
	lock sync.Mutex
}

func NewMultiLogger(ring io.Writer) *MultiLogger {
	m := &MultiLogger{ring: ring}
	m.log = log.New(m, "", 0)
	return m
}

// Write implements io.Writer.
func (l *MultiLogger) Write(b []byte) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if _, e := l.ring.Write(b); e != nil {
		return 0, e
	}
	if l.ext != nil {
		for _, line := range strings.Split(strings.Trim(string(b), "\n"), "\n") {
			l.ext.Println(line)
		}
	}
	return len(b), nil
}

// SetLogger replaces the external logger.  Nil leaves only the Log.
func (l *MultiLogger) SetLogger(ext *log.Logger) {
	l.lock.Lock()
	l.ext = ext
	l.lock.Unlock()
}

// Logger returns a logger that writes through the MultiLogger.
func (l *MultiLogger) Logger() *log.Logger {
	return l.log
}
