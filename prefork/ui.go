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
	"github.com/govisor/prefork/prefork/ui"
	"github.com/govisor/prefork/rest"
)

func doUI(client *rest.Client, url string) {
	app := ui.NewApp(client, url)
	app.Run()
}

/*
   Our screen has the following appearance:

                     http://127.0.0.1:8322                   Prefork v1.0
    SLOT      PID   STATUS     UPTIME  RESTARTS
       0    31214  running    0:04:10        12
       1    31302  running    0:00:02        13
       2        0  pending    0:00:00        14
   ____________________________________________________________________________
      3 Workers      2 Running      1 Pending
   [Q] Quit [H] Help [I] Info [S] Stop [L] Log
*/
