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

// StopReason says why a worker left its loop.
type StopReason int

const (
	StopNone        StopReason = iota // Entrance asked to stop
	StopMaxRequests                   // Served more than MaxRequests
	StopMasterGone                    // Supervisor no longer exists
	StopSignaled                      // Received StopSignal
	StopWorkError                     // Entrance failed
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "entrance"
	case StopMaxRequests:
		return "max requests"
	case StopMasterGone:
		return "master gone"
	case StopSignaled:
		return "signal"
	case StopWorkError:
		return "error"
	}
	return "unknown"
}

// checkStop evaluates the stop conditions in priority order.  The first
// one that holds wins and the remaining ones are not evaluated.  StopNone
// means the worker should serve another request.
func checkStop(requests, max int, alive, running func() bool) StopReason {
	if max > 0 && requests > max {
		return StopMaxRequests
	}
	if !alive() {
		return StopMasterGone
	}
	if !running() {
		return StopSignaled
	}
	return StopNone
}
