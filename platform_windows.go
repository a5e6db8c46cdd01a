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
)

// Workers are re-executed with a descriptor and a log pipe, which relies on
// POSIX process semantics.  Windows is not supported.

var StopSignal os.Signal = os.Interrupt

func masterAlive(master int) bool {
	return os.Getppid() == master
}

func closeOnExec(f *os.File) {
}

func daemonize() error {
	return ErrNotSupported
}

func newExecSpawner(c *Config, capture bool) (Spawner, error) {
	return nil, ErrNotSupported
}
