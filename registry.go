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
	"time"
)

// WorkerSlot is one position in the pool.  The index is stable for the
// life of the supervisor; the pid changes every time the slot is refilled.
type WorkerSlot struct {
	Index    int
	Pid      int
	Started  time.Time
	Restarts int
	handle   Handle
	stopping bool        // stop signal sent to the current process
	starts   []time.Time // recent start times, for rate limiting
	nstarts  int
}

// WorkerInfo is a snapshot of a WorkerSlot suitable for reporting.
type WorkerInfo struct {
	Index    int
	Pid      int
	Started  time.Time
	Restarts int
	Pending  bool // waiting out a restart rate limit
}

// Registry maps slot indices to slots.  It is owned by the supervisor's
// event loop and is not safe for concurrent use.
type Registry struct {
	slots []*WorkerSlot
	pids  map[int]int
}

func newRegistry(n int) *Registry {
	return &Registry{
		slots: make([]*WorkerSlot, n),
		pids:  make(map[int]int),
	}
}

// Set records a running worker for the slot, replacing whatever was there
// before.  The previous pid, if any, is forgotten.
func (r *Registry) Set(index, pid int, h Handle) (*WorkerSlot, error) {
	if index < 0 || index >= len(r.slots) {
		return nil, ErrNoSuchWorker
	}
	if other, ok := r.pids[pid]; ok && other != index {
		return nil, ErrDuplicatePid
	}
	slot := r.slots[index]
	if slot == nil {
		slot = &WorkerSlot{Index: index}
		r.slots[index] = slot
	} else {
		if slot.Pid > 0 {
			delete(r.pids, slot.Pid)
		}
		slot.Restarts++
	}
	slot.Pid = pid
	slot.handle = h
	slot.stopping = false
	slot.Started = time.Now()
	r.pids[pid] = index
	return slot, nil
}

// Vacate marks the slot as having no live process, keeping the slot itself.
func (r *Registry) Vacate(index int) {
	if slot := r.Slot(index); slot != nil {
		if slot.Pid > 0 {
			delete(r.pids, slot.Pid)
		}
		slot.Pid = 0
		slot.handle = nil
		slot.stopping = false
	}
}

// Remove deletes the slot.  This only happens when the pool is torn down.
func (r *Registry) Remove(index int) {
	r.Vacate(index)
	if index >= 0 && index < len(r.slots) {
		r.slots[index] = nil
	}
}

// Lookup finds the slot index for a pid.
func (r *Registry) Lookup(pid int) (int, bool) {
	index, ok := r.pids[pid]
	return index, ok
}

// Slot returns the slot for index, or nil.
func (r *Registry) Slot(index int) *WorkerSlot {
	if index < 0 || index >= len(r.slots) {
		return nil
	}
	return r.slots[index]
}

// Len returns the number of slots present.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Live returns the number of slots with a running process.
func (r *Registry) Live() int {
	return len(r.pids)
}

// Slots returns the slots present, in index order.
func (r *Registry) Slots() []*WorkerSlot {
	rv := make([]*WorkerSlot, 0, len(r.slots))
	for _, s := range r.slots {
		if s != nil {
			rv = append(rv, s)
		}
	}
	return rv
}

// Snapshot returns a copy of the registry contents in index order.
func (r *Registry) Snapshot() []WorkerInfo {
	rv := make([]WorkerInfo, 0, len(r.slots))
	for _, s := range r.Slots() {
		rv = append(rv, WorkerInfo{
			Index:    s.Index,
			Pid:      s.Pid,
			Started:  s.Started,
			Restarts: s.Restarts,
			Pending:  s.Pid == 0,
		})
	}
	return rv
}

// A slot is restarting too quickly if it started more than limit times in
// the last period.  The return value is how long to wait before the next
// start is permitted, zero if it may start now.
func (s *WorkerSlot) tooQuickly(limit int, period time.Duration, now time.Time) time.Duration {
	if limit <= 0 || s.nstarts < limit {
		return 0
	}
	oldest := s.starts[s.nstarts%limit]
	if end := oldest.Add(period); now.Before(end) {
		return end.Sub(now)
	}
	return 0
}

func (s *WorkerSlot) noteStart(limit int, now time.Time) {
	if limit <= 0 {
		return
	}
	if len(s.starts) != limit {
		s.starts = make([]time.Time, limit)
		s.nstarts = 0
	}
	s.starts[s.nstarts%limit] = now
	s.nstarts++
}
