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

package rest

import (
	"time"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	// A client that already holds the current Etag may ask the server to
	// hold the request until the resource changes, by echoing the Etag
	// in PollEtagHeader and giving the maximum wait in seconds in
	// PollTimeHeader.
	PollEtagHeader = "X-Prefork-Poll-Etag"
	PollTimeHeader = "X-Prefork-Poll-Time"

	maxPollTime = 300
)

var ok struct{}

// PoolInfo describes the pool as a whole.
type PoolInfo struct {
	Name       string    `json:"name"`
	Pid        int       `json:"pid"`
	Workers    int       `json:"workers"`
	Serial     int64     `json:"serial,string"`
	CreateTime time.Time `json:"created"`
	UpdateTime time.Time `json:"updated"`
	etag       string
}

// WorkerInfo describes one slot of the pool.
type WorkerInfo struct {
	Index    int       `json:"index"`
	Pid      int       `json:"pid"`
	Started  time.Time `json:"started"`
	Restarts int       `json:"restarts"`
	Pending  bool      `json:"pending"`
}

// LogRecord is one line of the pool log.  Worker is -1 for lines logged
// by the supervisor itself.
type LogRecord struct {
	Id     int64     `json:"id,string"`
	Time   time.Time `json:"time"`
	Worker int       `json:"worker"`
	Pid    int       `json:"pid"`
	Text   string    `json:"text"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
