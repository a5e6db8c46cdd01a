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
	"encoding/json"
	"io"
	"os"
	"time"
)

// WorkerEnv is the environment variable carrying the Descriptor of a
// worker process.  Its presence is what makes a process a worker.
const WorkerEnv = "PREFORK_WORKER"

// Descriptor is everything a worker needs to know about itself.  It is
// built by the master and handed to the child at creation time; nothing
// else is shared between them afterwards.
type Descriptor struct {
	Index       int           `json:"index"`
	Master      int           `json:"master"` // pid of the supervisor
	MaxRequests int           `json:"maxRequests"`
	Name        string        `json:"name"`
	JitterMin   time.Duration `json:"jitterMin"`
	JitterMax   time.Duration `json:"jitterMax"`
}

func (d *Descriptor) encode() string {
	b, _ := json.Marshal(d)
	return string(b)
}

func decodeDescriptor(s string) (*Descriptor, error) {
	d := &Descriptor{}
	if e := json.Unmarshal([]byte(s), d); e != nil {
		return nil, ErrBadDescriptor
	}
	if d.Index < 0 || d.Master <= 0 {
		return nil, ErrBadDescriptor
	}
	return d, nil
}

// Stream is a readable channel from a worker to the master.  Every line
// read from it is forwarded to the master's log, preceded by Prefix.
type Stream struct {
	Prefix string
	Reader io.Reader
}

// Handle is the master's view of one running worker.  The supervisor
// promises not to call these methods concurrently, except for Wait, which
// is called exactly once from its own goroutine.
type Handle interface {
	// Pid returns the operating system process id of the worker.
	Pid() int

	// Streams returns the channels that carry worker output.  The
	// first is always the log pipe.
	Streams() []Stream

	// Signal delivers a signal to the worker.
	Signal(os.Signal) error

	// Kill terminates the worker forcibly.
	Kill() error

	// Wait blocks until the worker has exited and been reaped.
	Wait() error

	// Close detaches the log channel.  It does not stop the worker.
	Close() error
}

// Spawner creates worker processes.  Applications normally use the
// default, which executes the current binary again, but other
// implementations may be installed with PropSpawner (tests do this).
type Spawner interface {
	Spawn(d Descriptor) (Handle, error)
}
