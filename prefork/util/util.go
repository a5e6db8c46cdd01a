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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/govisor/prefork/rest"
)

// Status describes the state of a worker slot in a word.
func Status(w *rest.WorkerInfo) string {
	if w.Pending || w.Pid <= 0 {
		return "pending"
	}
	return "running"
}

// Uptime returns how long the worker in the slot has been running,
// truncated to the second.
func Uptime(w *rest.WorkerInfo, now time.Time) time.Duration {
	if w.Pending || w.Started.IsZero() {
		return 0
	}
	d := now.Sub(w.Started)
	return d - d%time.Second
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

type sorted []rest.WorkerInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	return s[i].Index < s[j].Index
}

// SortWorkers puts workers in slot order.
func SortWorkers(items []rest.WorkerInfo) {
	sort.Sort(sorted(items))
}

// Counts returns the number of running and pending slots.
func Counts(items []rest.WorkerInfo) (running, pending int) {
	for i := range items {
		if Status(&items[i]) == "running" {
			running++
		} else {
			pending++
		}
	}
	return running, pending
}
