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

// Command preforkd keeps a pool of workers running a shell command.  Each
// worker runs the command over and over, one run per request, and the
// pool is controlled through a REST API.  See the prefork command for a
// client.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/golang/glog"
	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/context"
	"golang.org/x/sync/errgroup"

	"github.com/govisor/prefork"
	"github.com/govisor/prefork/rest"
)

var (
	manifestPath = flag.String("f", "preforkd.json", "manifest file")
	addr         = flag.String("a", "", "listen address (overrides manifest)")
	auth         = flag.String("u", "", "user:bcrypt-hash for the API (overrides manifest)")
)

// Manifest describes the pool run by preforkd.
type Manifest struct {
	Pool     prefork.Config `json:"pool"`
	Command  string         `json:"command"`
	DoneCode int            `json:"doneCode"` // exit status meaning "stop"
	Listen   string         `json:"listen"`
	Auth     string         `json:"auth"`
}

func loadManifest(name string) (*Manifest, error) {
	f, e := os.Open(name)
	if e != nil {
		return nil, e
	}
	defer f.Close()

	m := &Manifest{
		Pool:   prefork.DefaultConfig(),
		Listen: "127.0.0.1:8322",
	}
	if e := json.NewDecoder(f).Decode(m); e != nil {
		return nil, e
	}
	if m.Command == "" {
		return nil, errors.New("manifest has no command")
	}
	return m, nil
}

// glogWriter sends supervisor log lines to glog.
type glogWriter struct{}

func (glogWriter) Write(b []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		glog.Info(line)
	}
	return len(b), nil
}

// entrance returns the work function run in each worker: one run of the
// command per request.
func entrance(m *Manifest) (prefork.Entrance, error) {
	argv, e := shellquote.Split(m.Command)
	if e != nil {
		return nil, e
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	return func() (bool, error) {
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Stdout = prefork.Logger().Writer()
		cmd.Stderr = prefork.Logger().Writer()
		e := cmd.Run()
		if e == nil {
			return true, nil
		}
		if ee, ok := e.(*exec.ExitError); ok && m.DoneCode != 0 &&
			ee.ExitCode() == m.DoneCode {
			return false, nil
		}
		return false, e
	}, nil
}

func main() {
	flag.Parse()

	m, e := loadManifest(*manifestPath)
	if e != nil {
		glog.Fatalf("Failed to load manifest %s: %v", *manifestPath, e)
	}
	if *addr != "" {
		m.Listen = *addr
	}
	if *auth != "" {
		m.Auth = *auth
	}

	work, e := entrance(m)
	if e != nil {
		glog.Fatalf("Bad command %q: %v", m.Command, e)
	}
	if prefork.IsWorker() {
		prefork.RunWorker(work)
	}

	sup := prefork.NewSupervisor(m.Pool)
	sup.SetLogger(log.New(glogWriter{}, "", 0))

	h := rest.NewHandler(sup)
	if m.Auth != "" {
		i := strings.Index(m.Auth, ":")
		if i < 0 {
			glog.Fatalf("Auth must be user:bcrypt-hash")
		}
		hash := []byte(m.Auth[i+1:])
		if _, e := bcrypt.Cost(hash); e != nil {
			glog.Fatalf("Bad password hash: %v", e)
		}
		h.SetAuth(m.Auth[:i], hash)
	}

	if e := sup.Start(); e != nil {
		glog.Fatalf("Failed to start pool: %v", e)
	}
	glog.Infof("Pool %s started, listening on %s", m.Pool.Name, m.Listen)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	srv := &http.Server{Addr: m.Listen, Handler: h}
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		if e := srv.ListenAndServe(); e != http.ErrServerClosed {
			return e
		}
		return nil
	})
	g.Go(func() error {
		select {
		case s := <-sigs:
			glog.Infof("Got signal: %s", s)
		case <-sup.Done():
		case <-ctx.Done():
		}
		sup.Shutdown()
		return srv.Close()
	})
	g.Go(sup.Wait)

	e = g.Wait()
	glog.Flush()
	if e != nil {
		glog.Fatalf("Pool %s failed: %v", m.Pool.Name, e)
	}
}
