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
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	s := string(p)
	s = strings.Trim(s, "\n")
	tl.t.Log(s)
	return len(p), nil
}

// testH is a Handle for a pretend worker.  It exits when it is sent the
// stop signal (unless stubborn), when it is killed, or when exit is called.
type testH struct {
	pid      int
	desc     Descriptor
	stubborn bool
	deaf     int // stop signals dropped before exiting
	r        *io.PipeReader
	w        *io.PipeWriter
	done     chan struct{}
	once     sync.Once
	sigs     []os.Signal
	killed   bool
	sync.Mutex
}

func (h *testH) Pid() int {
	return h.pid
}

func (h *testH) Streams() []Stream {
	return []Stream{{Reader: h.r}}
}

func (h *testH) Signal(sig os.Signal) error {
	h.Lock()
	h.sigs = append(h.sigs, sig)
	stop := sig == StopSignal && !h.stubborn
	if stop && h.deaf > 0 {
		// Still starting up, and not listening yet.
		h.deaf--
		stop = false
	}
	h.Unlock()
	if stop {
		h.exit()
	}
	return nil
}

func (h *testH) nsigs() int {
	h.Lock()
	defer h.Unlock()
	return len(h.sigs)
}

func (h *testH) Kill() error {
	h.Lock()
	h.killed = true
	h.Unlock()
	h.exit()
	return nil
}

func (h *testH) Wait() error {
	<-h.done
	return nil
}

func (h *testH) Close() error {
	return h.r.Close()
}

func (h *testH) exit() {
	h.once.Do(func() {
		h.w.Close()
		close(h.done)
	})
}

func (h *testH) logf(format string, v ...interface{}) {
	log.New(h.w, "", 0).Printf(format, v...)
}

func (h *testH) signaled() bool {
	h.Lock()
	defer h.Unlock()
	return len(h.sigs) != 0
}

func (h *testH) wasKilled() bool {
	h.Lock()
	defer h.Unlock()
	return h.killed
}

type testSpawner struct {
	pid      int
	handles  []*testH
	failAt   int // index to fail on, -1 for none
	failNext bool
	stubborn bool
	deaf     int
	sync.Mutex
}

func newTestSpawner() *testSpawner {
	return &testSpawner{pid: 1000, failAt: -1}
}

func (sp *testSpawner) Spawn(d Descriptor) (Handle, error) {
	sp.Lock()
	defer sp.Unlock()
	if sp.failNext || d.Index == sp.failAt {
		return nil, errors.New("Injected failure")
	}
	sp.pid++
	r, w := io.Pipe()
	h := &testH{
		pid:      sp.pid,
		desc:     d,
		stubborn: sp.stubborn,
		deaf:     sp.deaf,
		r:        r,
		w:        w,
		done:     make(chan struct{}),
	}
	sp.handles = append(sp.handles, h)
	return h, nil
}

func (sp *testSpawner) count() int {
	sp.Lock()
	defer sp.Unlock()
	return len(sp.handles)
}

func (sp *testSpawner) handle(pid int) *testH {
	sp.Lock()
	defer sp.Unlock()
	for _, h := range sp.handles {
		if h.pid == pid {
			return h
		}
	}
	return nil
}

func (sp *testSpawner) all() []*testH {
	sp.Lock()
	defer sp.Unlock()
	return append([]*testH{}, sp.handles...)
}

func (sp *testSpawner) setFailNext(b bool) {
	sp.Lock()
	sp.failNext = b
	sp.Unlock()
}

func testConfig(name string, workers int) Config {
	c := DefaultConfig()
	c.Name = name
	c.Workers = workers
	c.StopTime = time.Second
	return c
}

// eventually polls cond for up to two seconds.
func eventually(cond func() bool) bool {
	for i := 0; i < 200; i++ {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond * 10)
	}
	return cond()
}

func pidsOf(ws []WorkerInfo) map[int]int {
	rv := make(map[int]int)
	for _, w := range ws {
		rv[w.Pid] = w.Index
	}
	return rv
}

func WithSupervisor(t *testing.T, c Config, fn func(s *Supervisor, sp *testSpawner)) func() {
	return func() {
		s := NewSupervisor(c)
		So(s, ShouldNotBeNil)
		s.SetLogger(log.New(&testLog{t: t}, "", 0))
		sp := newTestSpawner()
		So(s.SetProperty(PropSpawner, sp), ShouldBeNil)
		So(s.SetProperty(PropStopTime, time.Millisecond*200), ShouldBeNil)
		Reset(func() {
			s.Shutdown()
		})
		fn(s, sp)
	}
}

func TestSupervisorStart(t *testing.T) {
	Convey("Start a pool of three", t,
		WithSupervisor(t, testConfig("Start", 3), func(s *Supervisor, sp *testSpawner) {
			So(s.Start(), ShouldBeNil)
			ws := s.Workers()
			So(len(ws), ShouldEqual, 3)
			for i, w := range ws {
				So(w.Index, ShouldEqual, i)
				So(w.Pid, ShouldBeGreaterThan, 0)
				So(w.Restarts, ShouldEqual, 0)
			}
			So(len(pidsOf(ws)), ShouldEqual, 3)
			So(sp.count(), ShouldEqual, 3)

			for _, h := range sp.all() {
				So(h.desc.Master, ShouldEqual, os.Getpid())
				So(h.desc.Name, ShouldEqual, "Start")
			}

			Convey("A second start fails", func() {
				So(s.Start(), ShouldEqual, ErrAlreadyStarted)
			})

			Convey("Properties are read only", func() {
				So(s.SetProperty(PropRateLimit, 3), ShouldEqual, ErrPropReadOnly)
				So(s.SetProperty(PropLogger, 3), ShouldEqual, ErrBadPropType)
				So(s.SetProperty(PropertyName("Nosuch"), 3), ShouldEqual, ErrBadPropName)
			})

			Convey("Info reports the pool", func() {
				info := s.GetInfo()
				So(info.Name, ShouldEqual, "Start")
				So(info.Pid, ShouldEqual, os.Getpid())
				So(info.Workers, ShouldEqual, 3)
			})
		}))
}

func TestSupervisorBadConfig(t *testing.T) {
	Convey("Bad configurations are refused", t, func() {
		s := NewSupervisor(testConfig("Bad", 0))
		So(s.Start(), ShouldEqual, ErrBadWorkers)

		c := testConfig("Bad", 1)
		c.JitterMin = time.Second * 5
		s = NewSupervisor(c)
		So(s.Start(), ShouldEqual, ErrBadJitter)
	})
}

func TestSupervisorRestart(t *testing.T) {
	Convey("Exited workers are replaced", t,
		WithSupervisor(t, testConfig("Restart", 3), func(s *Supervisor, sp *testSpawner) {
			So(s.Start(), ShouldBeNil)
			before := s.Workers()
			serial := s.Serial()

			Convey("One exit", func() {
				sp.handle(before[1].Pid).exit()
				So(eventually(func() bool {
					ws := s.Workers()
					return len(ws) == 3 && ws[1].Pid > 0 && ws[1].Pid != before[1].Pid
				}), ShouldBeTrue)
				after := s.Workers()
				So(after[0].Pid, ShouldEqual, before[0].Pid)
				So(after[2].Pid, ShouldEqual, before[2].Pid)
				So(after[1].Restarts, ShouldEqual, 1)
				So(sp.count(), ShouldEqual, 4)
				So(s.Serial(), ShouldNotEqual, serial)
			})

			Convey("All exit at once", func() {
				for _, w := range before {
					sp.handle(w.Pid).exit()
				}
				So(eventually(func() bool {
					return sp.count() == 6
				}), ShouldBeTrue)
				So(eventually(func() bool {
					ws := s.Workers()
					for i, w := range ws {
						if w.Pid <= 0 || w.Pid == before[i].Pid {
							return false
						}
					}
					return len(ws) == 3
				}), ShouldBeTrue)
				So(len(pidsOf(s.Workers())), ShouldEqual, 3)
			})
		}))
}

func TestSupervisorUnknownPid(t *testing.T) {
	Convey("An untracked exit is only logged", t,
		WithSupervisor(t, testConfig("Unknown", 2), func(s *Supervisor, sp *testSpawner) {
			So(s.Start(), ShouldBeNil)
			before := s.Workers()
			s.exits <- exitEvent{pid: 99999}
			So(eventually(func() bool {
				recs, _ := s.GetLog(0)
				for _, r := range recs {
					if strings.Contains(r.Text, ErrUnknownPid.Error()) {
						return true
					}
				}
				return false
			}), ShouldBeTrue)
			So(s.Workers(), ShouldResemble, before)
			So(sp.count(), ShouldEqual, 2)
		}))
}

func TestSupervisorStartupFailure(t *testing.T) {
	Convey("A worker failing to start aborts the pool", t,
		WithSupervisor(t, testConfig("StartFail", 3), func(s *Supervisor, sp *testSpawner) {
			sp.failAt = 2
			e := s.Start()
			So(e, ShouldNotBeNil)
			So(errors.Is(e, ErrStartup), ShouldBeTrue)
			var se *StartupError
			So(errors.As(e, &se), ShouldBeTrue)
			So(se.Index, ShouldEqual, 2)

			So(sp.count(), ShouldEqual, 2)
			for _, h := range sp.all() {
				So(h.wasKilled(), ShouldBeTrue)
			}
			So(s.Wait(), ShouldEqual, e)
			So(s.Workers(), ShouldBeNil)
		}))
}

func TestSupervisorRestartFailure(t *testing.T) {
	Convey("A worker failing to restart is fatal", t,
		WithSupervisor(t, testConfig("RestartFail", 3), func(s *Supervisor, sp *testSpawner) {
			So(s.Start(), ShouldBeNil)
			before := s.Workers()
			sp.setFailNext(true)
			sp.handle(before[0].Pid).exit()

			select {
			case <-s.Done():
			case <-time.After(time.Second * 2):
				So("timeout", ShouldBeNil)
			}
			e := s.Wait()
			So(errors.Is(e, ErrRestart), ShouldBeTrue)
			var re *RestartError
			So(errors.As(e, &re), ShouldBeTrue)
			So(re.Index, ShouldEqual, 0)
			So(sp.handle(before[1].Pid).signaled(), ShouldBeTrue)
			So(sp.handle(before[2].Pid).signaled(), ShouldBeTrue)
		}))
}

func TestSupervisorLog(t *testing.T) {
	Convey("Worker output reaches the log", t,
		WithSupervisor(t, testConfig("Log", 2), func(s *Supervisor, sp *testSpawner) {
			So(s.Start(), ShouldBeNil)
			ws := s.Workers()
			h := sp.handle(ws[1].Pid)
			go h.logf("hello from %d", h.pid)

			var found LogRecord
			So(eventually(func() bool {
				recs, _ := s.GetLog(0)
				for _, r := range recs {
					if strings.HasPrefix(r.Text, "hello from") {
						found = r
						return true
					}
				}
				return false
			}), ShouldBeTrue)
			So(found.Worker, ShouldEqual, 1)
			So(found.Pid, ShouldEqual, h.pid)

			recs, _ := s.GetLog(0)
			started := 0
			for _, r := range recs {
				if r.Worker == -1 && strings.Contains(r.Text, "started..") {
					started++
				}
			}
			So(started, ShouldEqual, 2)
		}))
}

func TestSupervisorStopWorker(t *testing.T) {
	Convey("Stopping a worker replaces it", t,
		WithSupervisor(t, testConfig("StopWorker", 2), func(s *Supervisor, sp *testSpawner) {
			So(s.Start(), ShouldBeNil)
			before := s.Workers()
			So(s.StopWorker(0), ShouldBeNil)
			So(sp.handle(before[0].Pid).signaled(), ShouldBeTrue)
			So(eventually(func() bool {
				ws := s.Workers()
				return ws[0].Pid > 0 && ws[0].Pid != before[0].Pid
			}), ShouldBeTrue)
			So(s.StopWorker(7), ShouldEqual, ErrNoSuchWorker)
		}))

	Convey("A dropped stop signal is sent again", t,
		WithSupervisor(t, testConfig("Resignal", 2), func(s *Supervisor, sp *testSpawner) {
			sp.Lock()
			sp.deaf = 2
			sp.Unlock()
			So(s.Start(), ShouldBeNil)
			before := s.Workers()
			So(s.StopWorker(0), ShouldBeNil)
			h := sp.handle(before[0].Pid)
			So(eventually(func() bool {
				ws := s.Workers()
				return ws[0].Pid > 0 && ws[0].Pid != before[0].Pid
			}), ShouldBeTrue)
			So(h.nsigs(), ShouldBeGreaterThanOrEqualTo, 3)

			// Only the stopped slot is signaled.
			So(sp.handle(before[1].Pid).signaled(), ShouldBeFalse)
		}))
}

func TestSupervisorSpawnWorker(t *testing.T) {
	Convey("SpawnWorker replaces the slot", t,
		WithSupervisor(t, testConfig("SpawnWorker", 2), func(s *Supervisor, sp *testSpawner) {
			So(s.Start(), ShouldBeNil)
			before := s.Workers()
			pid, e := s.SpawnWorker(1)
			So(e, ShouldBeNil)
			So(pid, ShouldNotEqual, before[1].Pid)
			So(s.Workers()[1].Pid, ShouldEqual, pid)
			So(sp.handle(before[1].Pid).signaled(), ShouldBeTrue)

			// One line for the replacement, and closing the old
			// worker's pipe is not reported as a read error.
			time.Sleep(time.Millisecond * 50)
			tag := "[#" + strconv.Itoa(pid) + "]"
			lines := 0
			recs, _ := s.GetLog(0)
			for _, r := range recs {
				if strings.HasPrefix(r.Text, tag) {
					lines++
					So(r.Text, ShouldContainSubstring, "replacing")
				}
				So(r.Text, ShouldNotContainSubstring, "log pipe")
			}
			So(lines, ShouldEqual, 1)

			_, e = s.SpawnWorker(5)
			So(e, ShouldEqual, ErrNoSuchWorker)
		}))
}

func TestSupervisorShutdown(t *testing.T) {
	Convey("Shutdown stops every worker", t,
		WithSupervisor(t, testConfig("Shutdown", 3), func(s *Supervisor, sp *testSpawner) {
			So(s.Start(), ShouldBeNil)
			s.Shutdown()
			So(s.Wait(), ShouldBeNil)
			for _, h := range sp.all() {
				So(h.signaled(), ShouldBeTrue)
				So(h.wasKilled(), ShouldBeFalse)
			}
			So(sp.count(), ShouldEqual, 3)
			So(s.Workers(), ShouldBeNil)
			So(s.StopWorker(0), ShouldEqual, ErrNotRunning)
		}))

	Convey("Stubborn workers are killed", t,
		WithSupervisor(t, testConfig("Stubborn", 2), func(s *Supervisor, sp *testSpawner) {
			sp.stubborn = true
			So(s.Start(), ShouldBeNil)
			s.Shutdown()
			for _, h := range sp.all() {
				So(h.wasKilled(), ShouldBeTrue)
			}
		}))
}

func TestSupervisorRateLimit(t *testing.T) {
	Convey("The rate limiter delays restarts", t,
		WithSupervisor(t, testConfig("RateLimit", 1), func(s *Supervisor, sp *testSpawner) {
			So(s.SetProperty(PropRateLimit, 1), ShouldBeNil)
			So(s.SetProperty(PropRatePeriod, time.Millisecond*300), ShouldBeNil)
			So(s.Start(), ShouldBeNil)
			before := s.Workers()
			sp.handle(before[0].Pid).exit()

			So(eventually(func() bool {
				return s.Workers()[0].Pending
			}), ShouldBeTrue)
			So(sp.count(), ShouldEqual, 1)

			So(eventually(func() bool {
				ws := s.Workers()
				return !ws[0].Pending && ws[0].Pid != before[0].Pid
			}), ShouldBeTrue)
			So(sp.count(), ShouldEqual, 2)
		}))
}
