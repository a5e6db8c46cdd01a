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
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"time"
)

// Entrance is one unit of work.  It is called once per loop iteration.
// Returning true asks for another call, false stops the worker
// voluntarily, and an error stops the worker after logging it.
type Entrance func() (bool, error)

// Worker runs an Entrance until one of its stop conditions holds.  All of
// its state is local to the worker process; it is created fresh each time
// a slot is (re)started.
//
// The lifecycle is STARTING, RUNNING, STOPPING and EXITED, in that order.
// Stop conditions are only examined between requests, so a request in
// progress is always allowed to finish.
type Worker struct {
	desc     Descriptor
	pid      int
	requests int
	running  int32
	entrance Entrance
	logger   *log.Logger
	alive    func() bool
	sleep    func(time.Duration)
	rnd      *rand.Rand
	sigs     chan os.Signal
}

var current *Worker

// earlySigs is listening for the stop signal before main runs, so that a
// worker told to stop while the program is still setting up does not
// miss it.
var earlySigs chan os.Signal

func init() {
	if IsWorker() {
		earlySigs = make(chan os.Signal, 1)
		signal.Notify(earlySigs, StopSignal)
	}
}

// IsWorker reports whether the calling process was started by a
// Supervisor as one of its workers.
func IsWorker() bool {
	return os.Getenv(WorkerEnv) != ""
}

// RunWorker runs the calling process as a worker, using e as the unit of
// work.  It never returns: when the worker stops the process exits.  It must
// only be called when IsWorker reports true.
func RunWorker(e Entrance) {
	s := os.Getenv(WorkerEnv)
	if s == "" {
		fmt.Fprintf(os.Stderr, "prefork: %v\n", ErrNotWorker)
		os.Exit(2)
	}
	d, err := decodeDescriptor(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "prefork: %v\n", err)
		os.Exit(2)
	}
	// Programs run by the entrance must not think they are workers too.
	os.Unsetenv(WorkerEnv)
	w := NewWorker(*d, e, logPipe())
	current = w
	w.Run()
	os.Exit(0)
}

// logPipe returns the write end of the pipe to the master, which is
// always passed as descriptor 3.
func logPipe() io.Writer {
	f := os.NewFile(3, "prefork-log")
	if f == nil {
		return os.Stderr
	}
	if _, e := f.Stat(); e != nil {
		return os.Stderr
	}
	closeOnExec(f)
	return f
}

// Logger returns a logger whose output is forwarded to the master's log.
// Outside of a worker it logs to standard error.
func Logger() *log.Logger {
	if w := current; w != nil {
		return w.logger
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

// NewWorker creates a worker described by d, logging to out.  Most
// applications should use RunWorker instead.
func NewWorker(d Descriptor, e Entrance, out io.Writer) *Worker {
	w := &Worker{
		desc:     d,
		pid:      os.Getpid(),
		entrance: e,
		running:  1,
		logger:   log.New(out, "", 0),
		sleep:    time.Sleep,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	w.alive = func() bool {
		return masterAlive(w.desc.Master)
	}
	return w
}

// Index returns the slot index of the worker.
func (w *Worker) Index() int {
	return w.desc.Index
}

// Requests returns the number of times the Entrance has been called.
func (w *Worker) Requests() int {
	return w.requests
}

// Logger returns the worker's logger.
func (w *Worker) Logger() *log.Logger {
	return w.logger
}

// Running reports false once the worker has been asked to stop.
func (w *Worker) Running() bool {
	return atomic.LoadInt32(&w.running) != 0
}

// Stop asks the worker to stop before its next request.  This is what
// receipt of StopSignal does.  There is no way to undo it.
func (w *Worker) Stop() {
	atomic.StoreInt32(&w.running, 0)
}

func (w *Worker) catchSignals() {
	if earlySigs != nil {
		w.sigs, earlySigs = earlySigs, nil
	} else {
		w.sigs = make(chan os.Signal, 1)
		signal.Notify(w.sigs, StopSignal)
	}
	// Anything already received applies before the first request.
	select {
	case <-w.sigs:
		w.Stop()
	default:
	}
	go func(ch chan os.Signal) {
		for range ch {
			w.Stop()
		}
	}(w.sigs)
}

func (w *Worker) releaseSignals() {
	signal.Stop(w.sigs)
	close(w.sigs)
}

// jitter returns a random delay in [JitterMin, JitterMax], so that a pool
// of workers that hit their request limit together do not all restart at
// the same instant.
func (w *Worker) jitter() time.Duration {
	min, max := w.desc.JitterMin, w.desc.JitterMax
	if max <= min {
		return min
	}
	return min + time.Duration(w.rnd.Int63n(int64(max-min)+1))
}

func (w *Worker) invoke() (more bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			more = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.entrance()
}

func (w *Worker) loop() StopReason {
	for {
		r := checkStop(w.requests, w.desc.MaxRequests, w.alive, w.Running)
		if r != StopNone {
			return r
		}
		w.requests++
		more, e := w.invoke()
		if e != nil {
			w.logger.Printf("[Error] worker id: %d, index: %d, e: %v",
				w.pid, w.desc.Index, e)
			return StopWorkError
		}
		if !more {
			return StopNone
		}
	}
}

// Run executes the worker lifecycle and returns the reason it stopped.
// The caller is expected to exit afterwards.
func (w *Worker) Run() StopReason {
	SetProcessTitle(workerTitle(w.desc.Name, w.desc.Index))
	w.catchSignals()
	defer w.releaseSignals()

	reason := w.loop()

	w.logger.Printf("[#%d]\tWorker-%d: shutting down by %v..",
		w.pid, w.desc.Index, reason)
	w.sleep(w.jitter())
	return reason
}
