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

// Command prefork is a client for preforkd.  It uses subcommands.
//
// The flags are
//
//	-a <address>	- select the server address, default is
//			  http://127.0.0.1:8322
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//      info                - show information about the pool
//      workers             - list the worker slots
//      worker <index>      - show one worker slot
//      stop <index>        - stop the worker (it will be replaced)
//      log [<index>]       - show the pool log, or the lines of one slot
//      ui                  - start the full screen interface (default)
//
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/govisor/prefork/prefork/util"
	"github.com/govisor/prefork/rest"
)

var addr string = "http://127.0.0.1:8322"
var auth string = ""

func usage() {
	log.Fatalf("Usage: %s [-a <address>] [-u <user:pass>] <subcommand>",
		os.Args[0])
}

func index(s string) int {
	i, e := strconv.Atoi(s)
	if e != nil || i < 0 {
		log.Fatalf("Bad worker index %q", s)
	}
	return i
}

func showWorker(w *rest.WorkerInfo) {
	fmt.Printf("%6d %8d %8s %10s %8d\n", w.Index, w.Pid, util.Status(w),
		util.FormatDuration(util.Uptime(w, time.Now())), w.Restarts)
}

func run(client *rest.Client, args []string) {
	switch args[0] {
	case "info":
		if len(args) != 1 {
			usage()
		}
		info, e := client.GetInfo()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		fmt.Printf("Name:      %s\n", info.Name)
		fmt.Printf("Master:    %d\n", info.Pid)
		fmt.Printf("Workers:   %d\n", info.Workers)
		fmt.Printf("Up:        %v\n", time.Since(info.CreateTime))
		fmt.Printf("Changed:   %v\n", info.UpdateTime.Format(time.RFC3339))
	case "workers":
		if len(args) != 1 {
			usage()
		}
		ws, e := client.Workers()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		util.SortWorkers(ws)
		fmt.Printf("%6s %8s %8s %10s %8s\n",
			"SLOT", "PID", "STATUS", "UPTIME", "RESTARTS")
		for i := range ws {
			showWorker(&ws[i])
		}
	case "worker":
		if len(args) != 2 {
			usage()
		}
		w, e := client.GetWorker(index(args[1]))
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		showWorker(w)
	case "stop":
		if len(args) != 2 {
			usage()
		}
		if e := client.StopWorker(index(args[1])); e != nil {
			log.Fatalf("Failed: %v", e)
		}
	case "log":
		if len(args) > 2 {
			usage()
		}
		slot := -2
		if len(args) == 2 {
			slot = index(args[1])
		}
		li, e := client.GetLog()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		for _, r := range li.Records {
			if slot != -2 && r.Worker != slot {
				continue
			}
			fmt.Printf("%s %s\n", r.Time.Format(time.StampMilli), r.Text)
		}
	case "ui":
		doUI(client, addr)
	default:
		usage()
	}
}

func main() {
	flag.StringVar(&addr, "a", addr, "preforkd address")
	flag.StringVar(&auth, "u", auth, "user:pass authentication")
	flag.Parse()

	client := rest.NewClient(nil, addr)
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			log.Fatalf("Bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"ui"}
	}
	run(client, args)
}
