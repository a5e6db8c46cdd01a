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

// Package prefork provides a pre-forking worker pool for POSIX systems.
//
// A Supervisor (the master) keeps a fixed number of worker processes alive.
// Each worker repeatedly calls an application supplied Entrance until one of
// its stop conditions fires: it served more than the configured number of
// requests, the master went away, or it was sent the stop signal (SIGUSR1).
// It then logs why it is leaving, sleeps a short random interval so that a
// pool of recycled workers does not restart in lock step, and exits.  The
// master notices every exit and refills the slot, keeping the slot index but
// with a new pid.
//
// Go cannot fork a running program, so workers are created by executing the
// current binary again.  Applications must therefore check for the worker
// role before doing anything else in main:
//
//	func main() {
//		if prefork.IsWorker() {
//			prefork.RunWorker(serveOne)
//		}
//		sup := prefork.NewSupervisor(cfg)
//		if e := sup.Start(); e != nil {
//			log.Fatalf("Start error: %v", e)
//		}
//		...
//	}
//
// Log lines written by a worker (see Logger) travel over a pipe to the
// master, where they are merged into the master's log.
//
// Note that there is no crash loop protection by default.  A worker whose
// Entrance fails immediately is replaced immediately, throttled only by the
// stop jitter.  See PropRateLimit for an opt-in limiter.
//
package prefork
