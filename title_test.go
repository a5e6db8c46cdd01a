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

func TestTitles(t *testing.T) {
	Convey("Process titles carry the pool name", t, func() {
		So(masterTitle("web"), ShouldEqual, "web: master")
		So(workerTitle("web", 3), ShouldEqual, "web: worker_3")
		So(masterTitle(""), ShouldEqual, "master")
		So(workerTitle("", 0), ShouldEqual, "worker_0")
	})
}
