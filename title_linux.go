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

// +build linux

package prefork

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// SetProcessTitle sets the name of the calling thread as shown by ps and
// top.  The kernel truncates it to 15 bytes.  Errors are ignored.
func SetProcessTitle(name string) {
	b, e := unix.BytePtrFromString(name)
	if e != nil {
		return
	}
	unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(b)), 0, 0, 0)
}
