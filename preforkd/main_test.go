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

package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func writeManifest(dir, text string) string {
	name := filepath.Join(dir, "preforkd.json")
	So(ioutil.WriteFile(name, []byte(text), 0644), ShouldBeNil)
	return name
}

func TestManifest(t *testing.T) {
	Convey("Manifests", t, func() {
		dir, e := ioutil.TempDir("", "preforkd")
		So(e, ShouldBeNil)
		Reset(func() {
			os.RemoveAll(dir)
		})

		Convey("Absent fields keep their defaults", func() {
			m, e := loadManifest(writeManifest(dir,
				`{"pool": {"name": "web", "workers": 3}, "command": "true"}`))
			So(e, ShouldBeNil)
			So(m.Pool.Name, ShouldEqual, "web")
			So(m.Pool.Workers, ShouldEqual, 3)
			So(m.Pool.JitterMax > 0, ShouldBeTrue)
			So(m.Listen, ShouldEqual, "127.0.0.1:8322")
		})

		Convey("A command is required", func() {
			_, e := loadManifest(writeManifest(dir, `{"pool": {}}`))
			So(e, ShouldNotBeNil)
		})

		Convey("Missing files are reported", func() {
			_, e := loadManifest(filepath.Join(dir, "nosuch.json"))
			So(e, ShouldNotBeNil)
		})
	})
}

func TestEntrance(t *testing.T) {
	Convey("The command decides whether to continue", t, func() {
		m := &Manifest{Command: "sh -c 'exit 0'", DoneCode: 3}
		work, e := entrance(m)
		So(e, ShouldBeNil)
		more, e := work()
		So(e, ShouldBeNil)
		So(more, ShouldBeTrue)

		m.Command = "sh -c 'exit 3'"
		work, _ = entrance(m)
		more, e = work()
		So(e, ShouldBeNil)
		So(more, ShouldBeFalse)

		m.Command = "sh -c 'exit 4'"
		work, _ = entrance(m)
		more, e = work()
		So(e, ShouldNotBeNil)
		So(more, ShouldBeFalse)
	})

	Convey("Bad commands are refused", t, func() {
		_, e := entrance(&Manifest{Command: "'unterminated"})
		So(e, ShouldNotBeNil)
		_, e = entrance(&Manifest{Command: "   "})
		So(e, ShouldNotBeNil)
	})
}
