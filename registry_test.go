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
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRegistry(t *testing.T) {
	Convey("Registry bookkeeping", t, func() {
		r := newRegistry(3)
		So(r.Len(), ShouldEqual, 0)

		s, e := r.Set(0, 100, nil)
		So(e, ShouldBeNil)
		So(s.Index, ShouldEqual, 0)
		So(s.Pid, ShouldEqual, 100)
		_, e = r.Set(1, 101, nil)
		So(e, ShouldBeNil)
		So(r.Len(), ShouldEqual, 2)
		So(r.Live(), ShouldEqual, 2)

		idx, ok := r.Lookup(101)
		So(ok, ShouldBeTrue)
		So(idx, ShouldEqual, 1)

		Convey("Indices must be in range", func() {
			_, e := r.Set(3, 200, nil)
			So(e, ShouldEqual, ErrNoSuchWorker)
			_, e = r.Set(-1, 200, nil)
			So(e, ShouldEqual, ErrNoSuchWorker)
			So(r.Slot(5), ShouldBeNil)
		})

		Convey("A pid belongs to one slot", func() {
			_, e := r.Set(2, 100, nil)
			So(e, ShouldEqual, ErrDuplicatePid)
		})

		Convey("Refilling a slot replaces the pid", func() {
			r.Vacate(0)
			So(r.Live(), ShouldEqual, 1)
			So(r.Len(), ShouldEqual, 2)
			_, ok := r.Lookup(100)
			So(ok, ShouldBeFalse)

			s, e := r.Set(0, 102, nil)
			So(e, ShouldBeNil)
			So(s.Restarts, ShouldEqual, 1)
			idx, ok := r.Lookup(102)
			So(ok, ShouldBeTrue)
			So(idx, ShouldEqual, 0)
		})

		Convey("Snapshots are in index order", func() {
			r.Vacate(1)
			ws := r.Snapshot()
			So(len(ws), ShouldEqual, 2)
			So(ws[0].Pid, ShouldEqual, 100)
			So(ws[0].Pending, ShouldBeFalse)
			So(ws[1].Index, ShouldEqual, 1)
			So(ws[1].Pending, ShouldBeTrue)
		})

		Convey("Removed slots are gone", func() {
			r.Remove(0)
			So(r.Len(), ShouldEqual, 1)
			So(r.Slot(0), ShouldBeNil)
			So(r.Live(), ShouldEqual, 1)
		})
	})
}

func TestRestartRate(t *testing.T) {
	Convey("Restart rate limiting", t, func() {
		s := &WorkerSlot{}
		now := time.Now()
		period := time.Second * 10

		Convey("No limit", func() {
			for i := 0; i < 10; i++ {
				s.noteStart(0, now)
			}
			So(s.tooQuickly(0, period, now), ShouldEqual, 0)
		})

		Convey("Under the limit", func() {
			s.noteStart(3, now)
			s.noteStart(3, now)
			So(s.tooQuickly(3, period, now), ShouldEqual, 0)
		})

		Convey("At the limit", func() {
			s.noteStart(3, now)
			s.noteStart(3, now.Add(time.Second))
			s.noteStart(3, now.Add(time.Second*2))
			later := now.Add(time.Second * 4)
			So(s.tooQuickly(3, period, later), ShouldEqual, time.Second*6)
			So(s.tooQuickly(3, period, now.Add(period)), ShouldEqual, 0)
		})
	})
}
