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
	"encoding/json"
	"io"
	"time"
)

const (
	DefaultJitterMin = time.Second
	DefaultJitterMax = time.Second * 3
	DefaultStopTime  = time.Second * 10
)

// Config describes a worker pool.  Durations are in nanoseconds when
// expressed in JSON.
type Config struct {
	Name        string        `json:"name"`        // Used in process titles
	Workers     int           `json:"workers"`     // Pool size, must be > 0
	MaxRequests int           `json:"maxRequests"` // 0 means unlimited
	Daemonize   bool          `json:"daemonize"`
	JitterMin   time.Duration `json:"jitterMin"` // Minimum stop delay
	JitterMax   time.Duration `json:"jitterMax"` // Maximum stop delay
	StopTime    time.Duration `json:"stopTime"`  // Grace period on Shutdown

	// Args and Env are passed to re-executed workers.  If Args is
	// empty, the arguments of the current process are used.
	Args []string `json:"args"`
	Env  []string `json:"env"`
}

// DefaultConfig returns a Config for a single worker with the standard
// stop jitter.
func DefaultConfig() Config {
	return Config{
		Name:      "prefork",
		Workers:   1,
		JitterMin: DefaultJitterMin,
		JitterMax: DefaultJitterMax,
		StopTime:  DefaultStopTime,
	}
}

// Validate checks the Config for errors.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return ErrBadWorkers
	}
	if c.MaxRequests < 0 {
		return ErrBadMaxRequests
	}
	if c.JitterMin < 0 || c.JitterMax < c.JitterMin {
		return ErrBadJitter
	}
	return nil
}

// NewConfigFromJson decodes a Config.  Fields that are absent keep the
// values from DefaultConfig.
func NewConfigFromJson(r io.Reader) (Config, error) {
	c := DefaultConfig()
	dec := json.NewDecoder(r)
	if e := dec.Decode(&c); e != nil {
		return Config{}, e
	}
	return c, nil
}

func copyArray(src []string) []string {
	rv := make([]string, 0, len(src))
	rv = append(rv, src...)
	return rv
}
