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

// +build !windows

package prefork

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// StopSignal is delivered to a worker to ask it to stop after its current
// request.
var StopSignal os.Signal = syscall.SIGUSR1

const daemonEnv = "PREFORK_DAEMON"

// masterAlive reports whether the master is still our parent and still
// exists.  If the master died we have been reparented, so the parent pid
// check also catches the case where the master's pid was reused.
func masterAlive(master int) bool {
	if os.Getppid() != master {
		return false
	}
	if e := unix.Kill(master, 0); e == unix.ESRCH {
		return false
	}
	return true
}

// closeOnExec keeps the log pipe from leaking into programs the worker
// runs.
func closeOnExec(f *os.File) {
	unix.CloseOnExec(int(f.Fd()))
}

// daemonize detaches the program from its controlling terminal.  The
// calling process starts a detached copy of itself in a new session, with
// standard I/O on the null device, and exits.  In the copy daemonize clears
// the marker and returns.  The working directory is kept.
func daemonize() error {
	if os.Getenv(daemonEnv) != "" {
		// Not inherited by the workers.
		os.Unsetenv(daemonEnv)
		return nil
	}
	path, e := os.Executable()
	if e != nil {
		return e
	}
	null, e := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if e != nil {
		return e
	}
	defer null.Close()

	attr := &os.ProcAttr{
		Env:   append(os.Environ(), daemonEnv+"=1"),
		Files: []*os.File{null, null, null},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	}
	if _, e := os.StartProcess(path, os.Args, attr); e != nil {
		return e
	}
	os.Exit(0)
	return nil
}
