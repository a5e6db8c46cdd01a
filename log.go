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
	"os"
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

// LogRecord is one line of the pool log.  Worker is the slot index of the
// worker that produced the line, or -1 for the supervisor itself.
type LogRecord struct {
	Id     int64     `json:"id,string"`
	Time   time.Time `json:"time"`
	Worker int       `json:"worker"`
	Pid    int       `json:"pid"`
	Text   string    `json:"text"`
}

// Log keeps the most recent MaxLogRecords lines logged by the supervisor
// and forwarded from its workers.  It is safe for concurrent use.
type Log struct {
	records []LogRecord
	total   int // lines ever appended; the next slot is total % len(records)
	id      int64
	pid     int
	cv      *sync.Cond
	mx      sync.Mutex
}

// NewLog returns a Log instance.
func NewLog() *Log {
	log := &Log{
		records: make([]LogRecord, MaxLogRecords),
		// Start ids at the current time, so that a client holding an
		// id from a previous incarnation never sees a false match.
		id:  time.Now().UnixNano(),
		pid: os.Getpid(),
	}
	log.cv = sync.NewCond(&log.mx)
	return log
}

// Append adds the lines of text, attributed to a worker.
func (log *Log) Append(worker, pid int, text string) {
	now := time.Now()
	log.mx.Lock()
	for _, line := range strings.Split(strings.Trim(text, "\n"), "\n") {
		log.id++
		log.records[log.total%len(log.records)] = LogRecord{
			Id:     log.id,
			Time:   now,
			Worker: worker,
			Pid:    pid,
			Text:   line,
		}
		log.total++
	}
	log.cv.Broadcast()
	log.mx.Unlock()
}

// Write implements io.Writer, so that a log.Logger can write supervisor
// messages into the Log.
func (log *Log) Write(b []byte) (int, error) {
	log.Append(-1, log.pid, string(b))
	return len(b), nil
}

// Clear discards all records.
func (log *Log) Clear() {
	log.mx.Lock()
	log.total = 0
	log.id = time.Now().UnixNano()
	log.cv.Broadcast()
	log.mx.Unlock()
}

// GetRecords returns the records that are stored, oldest first, as well
// as an id suitable for use as an Etag.  If last is the id most recently
// returned and nothing was logged since, it returns nil and last.
func (log *Log) GetRecords(last int64) ([]LogRecord, int64) {
	log.mx.Lock()
	defer log.mx.Unlock()
	if log.id == last {
		return nil, last
	}
	cnt := log.total
	if cnt > len(log.records) {
		cnt = len(log.records)
	}
	recs := make([]LogRecord, 0, cnt)
	for i := log.total - cnt; i < log.total; i++ {
		recs = append(recs, log.records[i%len(log.records)])
	}
	return recs, log.id
}

// Watch waits until the log id differs from last, or until expire has
// passed, and returns the current id.  An expire of zero just polls.
func (log *Log) Watch(last int64, expire time.Duration) int64 {
	expired := expire <= 0
	var timer *time.Timer
	if !expired {
		timer = time.AfterFunc(expire, func() {
			log.mx.Lock()
			expired = true
			log.cv.Broadcast()
			log.mx.Unlock()
		})
	}

	log.mx.Lock()
	for log.id == last && !expired {
		log.cv.Wait()
	}
	last = log.id
	log.mx.Unlock()

	if timer != nil {
		timer.Stop()
	}
	return last
}
