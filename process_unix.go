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
	"os/exec"
	"strings"
	"syscall"
)

// execSpawner creates workers by executing the current binary again.
// The log pipe is passed as file descriptor 3.
type execSpawner struct {
	path    string
	args    []string
	env     []string
	capture bool
}

// process is a worker started by execSpawner.  We create the pipes
// ourselves rather than using StdoutPipe, because Wait runs concurrently
// with the readers and must not close them.
type process struct {
	cmd     exec.Cmd
	files   []*os.File
	streams []Stream
}

func newExecSpawner(c *Config, capture bool) (Spawner, error) {
	path, e := os.Executable()
	if e != nil {
		return nil, e
	}
	args := c.Args
	if len(args) == 0 && len(os.Args) > 1 {
		args = os.Args[1:]
	}
	return &execSpawner{
		path:    path,
		args:    copyArray(args),
		env:     copyArray(c.Env),
		capture: capture,
	}, nil
}

func (sp *execSpawner) environ(d *Descriptor) []string {
	env := make([]string, 0, len(os.Environ())+len(sp.env)+1)
	for _, v := range os.Environ() {
		if !strings.HasPrefix(v, WorkerEnv+"=") {
			env = append(env, v)
		}
	}
	env = append(env, sp.env...)
	return append(env, WorkerEnv+"="+d.encode())
}

func (sp *execSpawner) Spawn(d Descriptor) (Handle, error) {
	p := &process{}

	// argv[0] is what ps shows, so use the worker title for it.
	p.cmd.Path = sp.path
	p.cmd.Args = append([]string{workerTitle(d.Name, d.Index)}, sp.args...)
	p.cmd.Env = sp.environ(&d)
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var child []*os.File
	fail := func(e error) (Handle, error) {
		for _, f := range child {
			f.Close()
		}
		p.Close()
		return nil, e
	}

	r, w, e := os.Pipe()
	if e != nil {
		return fail(e)
	}
	p.files = append(p.files, r)
	p.streams = append(p.streams, Stream{Reader: r})
	child = append(child, w)
	p.cmd.ExtraFiles = []*os.File{w}

	if sp.capture {
		for _, pfx := range []string{"stdout> ", "stderr> "} {
			r, w, e := os.Pipe()
			if e != nil {
				return fail(e)
			}
			p.files = append(p.files, r)
			p.streams = append(p.streams, Stream{Prefix: pfx, Reader: r})
			child = append(child, w)
		}
		p.cmd.Stdout = child[1]
		p.cmd.Stderr = child[2]
	} else {
		p.cmd.Stdout = os.Stdout
		p.cmd.Stderr = os.Stderr
	}

	if e := p.cmd.Start(); e != nil {
		return fail(e)
	}
	// The child holds its own copies now.
	for _, f := range child {
		f.Close()
	}
	return p, nil
}

func (p *process) Pid() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *process) Streams() []Stream {
	return p.streams
}

func (p *process) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return ErrNotRunning
	}
	return p.cmd.Process.Signal(sig)
}

func (p *process) Kill() error {
	if p.cmd.Process == nil {
		return ErrNotRunning
	}
	return p.cmd.Process.Kill()
}

func (p *process) Wait() error {
	return p.cmd.Wait()
}

func (p *process) Close() error {
	var rv error
	for _, f := range p.files {
		if e := f.Close(); e != nil && rv == nil {
			rv = e
		}
	}
	p.files = nil
	return rv
}
