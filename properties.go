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

// Property names.  Internal names will all start with an underscore.
// Consumers wishing to use a property must know the property name and type.
type PropertyName string

const (
	PropLogger     PropertyName = "_Logger"     // *log.Logger for messages
	PropNotify                  = "_Notify"     // func(), called on pool change
	PropStopTime                = "_StopTime"   // time.Duration, Shutdown grace
	PropRateLimit               = "_RateLimit"  // int, max restarts per period
	PropRatePeriod              = "_RatePeriod" // time.Duration, period for limit
	PropCapture                 = "_Capture"    // bool, capture worker stdio
	PropSpawner                 = "_Spawner"    // Spawner used to create workers
)
