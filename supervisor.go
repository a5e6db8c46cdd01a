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
	"bufio"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// drainTime bounds how long we wait, after a worker has been reaped, for
// the rest of its output to arrive before reporting the exit.
const drainTime = time.Millisecond * 250

type exitEvent struct {
	pid int
	err error
}

type lineEvent struct {
	index int
	pid   int
	text  string
}

// Supervisor is the master of a worker pool.  It starts Config.Workers
// workers and replaces every one of them that exits, for whatever reason,
// until it is shut down.
//
// All pool state is owned by a single goroutine, the event loop.  Child
// exits, forwarded log lines and requests made through the public methods
// are all delivered to that goroutine over channels, so the registry needs
// no locking.  The mutex only protects the change serial and properties.
type Supervisor struct {
	cfg        Config
	spawner    Spawner
	reg        *Registry
	master     int
	capture    bool
	stopTime   time.Duration
	rateLimit  int
	ratePeriod time.Duration

	exits chan exitEvent
	lines chan lineEvent
	calls chan func()
	done  chan struct{}

	// Owned by the event loop.
	stopping bool
	killer   *time.Timer
	err      error

	logger     *log.Logger
	mlog       *MultiLogger
	log        *Log
	notify     func()
	started    bool
	running    bool
	result     error
	serial     int64
	createTime time.Time
	updateTime time.Time
	mx         sync.Mutex
	cv         *sync.Cond
}

// Info is top-level information about a Supervisor.
type Info struct {
	Name       string
	Pid        int
	Workers    int
	Serial     int64
	CreateTime time.Time
	UpdateTime time.Time
}

// NewSupervisor allocates a Supervisor for the pool described by cfg.
// Nothing is started until Start is called.
func NewSupervisor(cfg Config) *Supervisor {
	n := cfg.Workers
	if n < 0 {
		n = 0
	}
	s := &Supervisor{
		cfg:      cfg,
		reg:      newRegistry(n),
		capture:  cfg.Daemonize,
		stopTime: cfg.StopTime,
		exits:    make(chan exitEvent, n+1),
		lines:    make(chan lineEvent, 64),
		calls:    make(chan func()),
		done:     make(chan struct{}),
		// The serial starts at the current time, so that clients
		// caching results across a restart of the master notice.
		serial: time.Now().UnixNano(),
	}
	s.cfg.Args = copyArray(cfg.Args)
	s.cfg.Env = copyArray(cfg.Env)
	s.cv = sync.NewCond(&s.mx)
	s.createTime = time.Now()
	s.updateTime = s.createTime
	s.log = NewLog()
	s.mlog = NewMultiLogger(s.log)
	s.logger = log.New(os.Stderr, "", log.LstdFlags)
	s.mlog.SetLogger(s.logger)
	return s
}

// Name returns the pool name from the Config.
func (s *Supervisor) Name() string {
	return s.cfg.Name
}

func (s *Supervisor) logf(format string, v ...interface{}) {
	s.mlog.Logger().Printf(format, v...)
}

// SetLogger replaces the destination for log messages, which is standard
// error by default.  The in-memory Log is always kept.
func (s *Supervisor) SetLogger(l *log.Logger) {
	s.mx.Lock()
	s.logger = l
	s.mlog.SetLogger(l)
	s.mx.Unlock()
}

// SetProperty sets a property.  Only PropLogger may be changed once the
// supervisor has been started.
func (s *Supervisor) SetProperty(n PropertyName, v interface{}) error {
	if n == PropLogger {
		if v, ok := v.(*log.Logger); ok {
			s.SetLogger(v)
			return nil
		}
		return ErrBadPropType
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	if s.started {
		switch n {
		case PropNotify, PropStopTime, PropRateLimit, PropRatePeriod,
			PropCapture, PropSpawner:
			return ErrPropReadOnly
		}
		return ErrBadPropName
	}
	switch n {
	case PropNotify:
		if v, ok := v.(func()); ok {
			s.notify = v
			return nil
		}
		return ErrBadPropType
	case PropStopTime:
		if v, ok := v.(time.Duration); ok {
			s.stopTime = v
			return nil
		}
		return ErrBadPropType
	case PropRateLimit:
		if v, ok := v.(int); ok {
			s.rateLimit = v
			return nil
		}
		return ErrBadPropType
	case PropRatePeriod:
		if v, ok := v.(time.Duration); ok {
			s.ratePeriod = v
			return nil
		}
		return ErrBadPropType
	case PropCapture:
		if v, ok := v.(bool); ok {
			s.capture = v
			return nil
		}
		return ErrBadPropType
	case PropSpawner:
		if v, ok := v.(Spawner); ok {
			s.spawner = v
			return nil
		}
		return ErrBadPropType
	}
	return ErrBadPropName
}

// GetProperty returns the value of a property.
func (s *Supervisor) GetProperty(n PropertyName) (interface{}, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	switch n {
	case PropLogger:
		return s.logger, nil
	case PropNotify:
		return s.notify, nil
	case PropStopTime:
		return s.stopTime, nil
	case PropRateLimit:
		return s.rateLimit, nil
	case PropRatePeriod:
		return s.ratePeriod, nil
	case PropCapture:
		return s.capture, nil
	case PropSpawner:
		return s.spawner, nil
	}
	return nil, ErrBadPropName
}

// changed bumps the serial and wakes watchers.
func (s *Supervisor) changed() {
	s.mx.Lock()
	s.serial++
	s.updateTime = time.Now()
	s.cv.Broadcast()
	cb := s.notify
	s.mx.Unlock()
	if cb != nil {
		go cb()
	}
}

// Serial returns a number that changes every time the pool changes.
func (s *Supervisor) Serial() int64 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.serial
}

// WatchSerial waits for the serial to differ from old, for at most expire,
// and returns the current serial.  An expire of zero just polls.
func (s *Supervisor) WatchSerial(old int64, expire time.Duration) int64 {
	expired := expire <= 0
	var timer *time.Timer
	if !expired {
		timer = time.AfterFunc(expire, func() {
			s.mx.Lock()
			expired = true
			s.cv.Broadcast()
			s.mx.Unlock()
		})
	}
	s.mx.Lock()
	for s.serial == old && !expired {
		s.cv.Wait()
	}
	rv := s.serial
	s.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// GetInfo returns a consistent snapshot of top-level information.
func (s *Supervisor) GetInfo() *Info {
	s.mx.Lock()
	defer s.mx.Unlock()
	return &Info{
		Name:       s.cfg.Name,
		Pid:        s.master,
		Workers:    s.cfg.Workers,
		Serial:     s.serial,
		CreateTime: s.createTime,
		UpdateTime: s.updateTime,
	}
}

// GetLog returns the pool log.  See Log.GetRecords.
func (s *Supervisor) GetLog(last int64) ([]LogRecord, int64) {
	return s.log.GetRecords(last)
}

// WatchLog waits for the pool log to change.  See Log.Watch.
func (s *Supervisor) WatchLog(last int64, expire time.Duration) int64 {
	return s.log.Watch(last, expire)
}

// Start starts the pool.  If the Config asks for it, the program is first
// detached from its terminal; the original process exits and Start carries
// on in the detached copy.  Workers are then created in index order, and
// the event loop is started.  Start does not block.
//
// If any worker cannot be created, the ones already created are killed and
// a *StartupError is returned.
func (s *Supervisor) Start() error {
	if e := s.cfg.Validate(); e != nil {
		return e
	}
	s.mx.Lock()
	if s.started {
		s.mx.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mx.Unlock()

	if s.cfg.Daemonize {
		if e := daemonize(); e != nil {
			return s.abort(&StartupError{Index: -1, Err: e})
		}
	}
	SetProcessTitle(masterTitle(s.cfg.Name))

	s.mx.Lock()
	s.master = os.Getpid()
	s.mx.Unlock()

	if s.spawner == nil {
		sp, e := newExecSpawner(&s.cfg, s.capture)
		if e != nil {
			return s.abort(&StartupError{Index: -1, Err: e})
		}
		s.spawner = sp
	}

	s.logf("*** Prefork starting: %s (%d workers) ***",
		s.cfg.Name, s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		pid, e := s.spawnWorker(i)
		if e != nil {
			s.logf("Start error: worker %d: %v", i, e)
			return s.abort(&StartupError{Index: i, Err: e})
		}
		s.logf("[#%d]\tWorker-%d: started..", pid, i)
	}

	s.mx.Lock()
	s.running = true
	s.mx.Unlock()
	go s.run()
	return nil
}

// abort tears down a partially formed pool.  It runs before the event
// loop exists, so it consumes the events itself.
func (s *Supervisor) abort(err error) error {
	for _, slot := range s.reg.Slots() {
		if slot.handle != nil {
			slot.handle.Kill()
		}
	}
	for s.reg.Live() > 0 {
		select {
		case ev := <-s.exits:
			if index, ok := s.reg.Lookup(ev.pid); ok {
				s.reg.Slot(index).handle.Close()
				s.reg.Remove(index)
			}
		case ev := <-s.lines:
			s.forwardLine(ev)
		}
	}
	for _, slot := range s.reg.Slots() {
		s.reg.Remove(slot.Index)
	}
	s.mx.Lock()
	s.result = err
	s.mx.Unlock()
	close(s.done)
	return err
}

// spawnWorker creates a worker for the slot and registers it, along with
// the goroutines that forward its output and report its exit.  It must be
// called from the event loop (or before it starts).
func (s *Supervisor) spawnWorker(index int) (int, error) {
	d := Descriptor{
		Index:       index,
		Master:      s.master,
		MaxRequests: s.cfg.MaxRequests,
		Name:        s.cfg.Name,
		JitterMin:   s.cfg.JitterMin,
		JitterMax:   s.cfg.JitterMax,
	}
	h, e := s.spawner.Spawn(d)
	if e != nil {
		return -1, e
	}
	pid := h.Pid()
	slot, e := s.reg.Set(index, pid, h)
	if e != nil {
		h.Kill()
		h.Wait()
		h.Close()
		return -1, e
	}
	slot.noteStart(s.rateLimit, slot.Started)
	s.watch(index, pid, h)
	s.changed()
	return pid, nil
}

func (s *Supervisor) watch(index, pid int, h Handle) {
	var wg sync.WaitGroup
	for _, st := range h.Streams() {
		wg.Add(1)
		go func(st Stream) {
			defer wg.Done()
			s.forward(index, pid, st)
		}(st)
	}
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	go func() {
		e := h.Wait()
		select {
		case <-drained:
		case <-time.After(drainTime):
		}
		select {
		case s.exits <- exitEvent{pid: pid, err: e}:
		case <-s.done:
		}
	}()
}

// forward reads lines from a worker stream and hands them to the loop.
func (s *Supervisor) forward(index, pid int, st Stream) {
	reader := bufio.NewReader(st.Reader)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			ev := lineEvent{
				index: index,
				pid:   pid,
				text:  st.Prefix + strings.TrimRight(line, "\n"),
			}
			select {
			case s.lines <- ev:
			case <-s.done:
				return
			}
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) &&
				!errors.Is(err, io.ErrClosedPipe) {
				s.logf("Worker-%d: log pipe: %v", index, err)
			}
			return
		}
	}
}

func (s *Supervisor) forwardLine(ev lineEvent) {
	s.log.Append(ev.index, ev.pid, ev.text)
	s.mx.Lock()
	l := s.logger
	s.mx.Unlock()
	if l != nil {
		l.Print(ev.text)
	}
}

func (s *Supervisor) run() {
	tick := time.NewTicker(resignalInterval)
	defer tick.Stop()
	for !s.stopping || s.reg.Len() > 0 {
		select {
		case ev := <-s.exits:
			s.onChildTerminated(ev)
			s.drainExits()
		case ev := <-s.lines:
			s.forwardLine(ev)
		case fn := <-s.calls:
			fn()
		case <-tick.C:
			s.resignal()
		}
	}
	s.finish()
}

// A worker only notices the stop signal once its handler is installed,
// and one that is still starting up drops it.  So the signal is repeated
// until the process exits.
const resignalInterval = time.Millisecond * 250

func (s *Supervisor) signalStop(slot *WorkerSlot) error {
	slot.stopping = true
	return slot.handle.Signal(StopSignal)
}

func (s *Supervisor) resignal() {
	for _, slot := range s.reg.Slots() {
		if slot.handle != nil && slot.stopping {
			slot.handle.Signal(StopSignal)
		}
	}
}

// drainExits handles every exit that is already pending, so that a burst
// of exits is dealt with as a whole.
func (s *Supervisor) drainExits() {
	for {
		select {
		case ev := <-s.exits:
			s.onChildTerminated(ev)
		default:
			return
		}
	}
}

func (s *Supervisor) onChildTerminated(ev exitEvent) {
	index, ok := s.reg.Lookup(ev.pid)
	if !ok {
		s.logf("Warning: %v: %d", ErrUnknownPid, ev.pid)
		return
	}
	slot := s.reg.Slot(index)
	if slot.handle != nil {
		slot.handle.Close()
	}
	s.reg.Vacate(index)

	if s.stopping {
		s.logf("[#%d]\tWorker-%d: stopped", ev.pid, index)
		s.reg.Remove(index)
		s.changed()
		return
	}
	s.restart(index)
}

// restart refills a vacant slot.  Every vacancy is refilled; the rate
// limiter, if configured, can only delay it.
func (s *Supervisor) restart(index int) {
	slot := s.reg.Slot(index)
	if slot == nil || slot.handle != nil {
		return
	}
	if s.stopping {
		s.reg.Remove(index)
		s.changed()
		return
	}
	if d := slot.tooQuickly(s.rateLimit, s.ratePeriod, time.Now()); d > 0 {
		s.logf("Worker-%d: restarting too quickly, waiting %v", index, d)
		time.AfterFunc(d, func() {
			s.post(func() { s.restart(index) })
		})
		s.changed()
		return
	}
	pid, e := s.spawnWorker(index)
	if e != nil {
		s.fail(&RestartError{Index: index, Err: e})
		return
	}
	s.logf("[#%d]\tWorker-%d: restarted..", pid, index)
}

func (s *Supervisor) fail(e error) {
	s.logf("Fatal: %v", e)
	if s.err == nil {
		s.err = e
	}
	s.shutdown()
}

// shutdown stops refilling slots and asks every worker to stop.  Workers
// still running after the stop time are killed.
func (s *Supervisor) shutdown() {
	if s.stopping {
		return
	}
	s.stopping = true
	s.logf("*** Prefork shutting down: %s ***", s.cfg.Name)
	for _, slot := range s.reg.Slots() {
		if slot.handle == nil {
			s.reg.Remove(slot.Index)
			continue
		}
		if e := s.signalStop(slot); e != nil {
			s.logf("Worker-%d: failed sending stop signal: %v",
				slot.Index, e)
		}
	}
	if s.stopTime > 0 {
		s.killer = time.AfterFunc(s.stopTime, func() {
			s.post(s.killAll)
		})
	}
	s.changed()
}

func (s *Supervisor) killAll() {
	for _, slot := range s.reg.Slots() {
		if slot.handle != nil {
			s.logf("[#%d]\tWorker-%d: graceful stop timed out",
				slot.Pid, slot.Index)
			if e := slot.handle.Kill(); e != nil {
				s.logf("Worker-%d: failed killing: %v", slot.Index, e)
			}
		}
	}
}

func (s *Supervisor) finish() {
	if s.killer != nil {
		s.killer.Stop()
	}
	s.mx.Lock()
	s.running = false
	s.result = s.err
	s.mx.Unlock()
	s.logf("*** Prefork shut down: %s ***", s.cfg.Name)
	close(s.done)
}

// post hands fn to the event loop.  It returns false if the loop has
// finished.
func (s *Supervisor) post(fn func()) bool {
	select {
	case s.calls <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call runs fn on the event loop and waits for it to complete.
func (s *Supervisor) call(fn func()) error {
	s.mx.Lock()
	running := s.running
	s.mx.Unlock()
	if !running {
		return ErrNotRunning
	}
	ran := make(chan struct{})
	if !s.post(func() {
		fn()
		close(ran)
	}) {
		return ErrNotRunning
	}
	<-ran
	return nil
}

// SpawnWorker creates a new worker for the slot, replacing any worker
// that is already there, and returns its pid.  A replaced worker is sent
// the stop signal and is no longer tracked.
func (s *Supervisor) SpawnWorker(index int) (int, error) {
	pid := -1
	var err error
	e := s.call(func() {
		if s.stopping {
			err = ErrNotRunning
			return
		}
		slot := s.reg.Slot(index)
		if slot == nil {
			err = ErrNoSuchWorker
			return
		}
		old := -1
		if h := slot.handle; h != nil {
			old = slot.Pid
			h.Signal(StopSignal)
			h.Close()
			s.reg.Vacate(index)
		}
		if pid, err = s.spawnWorker(index); err != nil {
			return
		}
		if old > 0 {
			s.logf("[#%d]\tWorker-%d: started, replacing #%d..",
				pid, index, old)
		} else {
			s.logf("[#%d]\tWorker-%d: started..", pid, index)
		}
	})
	if e != nil {
		return -1, e
	}
	return pid, err
}

// StopWorker sends the stop signal to the worker in the slot.  The worker
// finishes its current request, exits, and is replaced.
func (s *Supervisor) StopWorker(index int) error {
	var err error
	e := s.call(func() {
		slot := s.reg.Slot(index)
		if slot == nil || slot.handle == nil {
			err = ErrNoSuchWorker
			return
		}
		s.logf("[#%d]\tWorker-%d: sending stop signal", slot.Pid, index)
		err = s.signalStop(slot)
	})
	if e != nil {
		return e
	}
	return err
}

// Workers returns a snapshot of the pool, in slot order.
func (s *Supervisor) Workers() []WorkerInfo {
	var rv []WorkerInfo
	s.call(func() {
		rv = s.reg.Snapshot()
	})
	return rv
}

// Shutdown stops the pool and waits for every worker to exit.  Think of
// this as tearing down the entire thing; a Supervisor cannot be restarted.
func (s *Supervisor) Shutdown() {
	s.mx.Lock()
	started := s.started
	s.mx.Unlock()
	if !started {
		return
	}
	s.call(s.shutdown)
	<-s.done
}

// Wait blocks until the pool has been shut down, either by Shutdown or
// because a worker could not be restarted.  In the latter case the
// *RestartError is returned.
func (s *Supervisor) Wait() error {
	<-s.done
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.result
}

// Done returns a channel that is closed once the pool has shut down.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}
