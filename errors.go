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
	"errors"
	"fmt"
)

var (
	ErrBadWorkers     = errors.New("Worker count must be positive")
	ErrBadMaxRequests = errors.New("Max requests must not be negative")
	ErrBadJitter      = errors.New("Bad stop jitter range")
	ErrStartup        = errors.New("Failed to start worker pool")
	ErrRestart        = errors.New("Failed to restart worker")
	ErrUnknownPid     = errors.New("Termination of untracked pid")
	ErrDuplicatePid   = errors.New("Pid already registered")
	ErrNoSuchWorker   = errors.New("No such worker")
	ErrNotRunning     = errors.New("Supervisor is not running")
	ErrAlreadyStarted = errors.New("Supervisor already started")
	ErrNotWorker      = errors.New("Not a worker process")
	ErrBadDescriptor  = errors.New("Bad worker descriptor")
	ErrBadPropType    = errors.New("Bad property type")
	ErrBadPropName    = errors.New("Bad property name")
	ErrPropReadOnly   = errors.New("Property not changeable")
	ErrNotSupported   = errors.New("Not supported on this platform")
)

// StartupError reports that the initial pool could not be formed.  A
// partially formed pool is never left running.
type StartupError struct {
	Index int
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%v: worker %d: %v", ErrStartup, e.Index, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

func (e *StartupError) Is(target error) bool {
	return target == ErrStartup
}

// RestartError reports that a vacated slot could not be refilled.  There is
// no retry policy, so this is fatal to the supervisor.
type RestartError struct {
	Index int
	Err   error
}

func (e *RestartError) Error() string {
	return fmt.Sprintf("%v: worker %d: %v", ErrRestart, e.Index, e.Err)
}

func (e *RestartError) Unwrap() error {
	return e.Err
}

func (e *RestartError) Is(target error) bool {
	return target == ErrRestart
}
