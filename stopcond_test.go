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

	. "github.com/smartystreets/goconvey/convey"
)

func TestCheckStop(t *testing.T) {
	yes := func() bool { return true }
	no := func() bool { return false }

	Convey("Nothing holds", t, func() {
		So(checkStop(0, 0, yes, yes), ShouldEqual, StopNone)
		So(checkStop(5, 5, yes, yes), ShouldEqual, StopNone)
	})

	Convey("Zero MaxRequests is unlimited", t, func() {
		So(checkStop(1000000, 0, yes, yes), ShouldEqual, StopNone)
	})

	Convey("Conditions are checked in priority order", t, func() {
		So(checkStop(6, 5, no, no), ShouldEqual, StopMaxRequests)
		So(checkStop(5, 5, no, no), ShouldEqual, StopMasterGone)
		So(checkStop(5, 5, yes, no), ShouldEqual, StopSignaled)
	})

	Convey("Later conditions are not evaluated", t, func() {
		called := false
		probe := func() bool {
			called = true
			return true
		}
		checkStop(6, 5, probe, probe)
		So(called, ShouldBeFalse)
		checkStop(0, 0, no, probe)
		So(called, ShouldBeFalse)
	})

	Convey("Reasons have names", t, func() {
		So(StopMaxRequests.String(), ShouldEqual, "max requests")
		So(StopMasterGone.String(), ShouldEqual, "master gone")
		So(StopSignaled.String(), ShouldEqual, "signal")
		So(StopReason(99).String(), ShouldEqual, "unknown")
	})
}
