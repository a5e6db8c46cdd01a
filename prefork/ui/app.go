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

package ui

import (
	"log"
	"time"

	"golang.org/x/net/context"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/govisor/prefork/prefork/util"
	"github.com/govisor/prefork/rest"
)

type App struct {
	app       *views.Application
	view      views.View
	panel     views.Widget
	info      *InfoPanel
	help      *HelpPanel
	log       *LogPanel
	main      *MainPanel
	client    *rest.Client
	logger    *log.Logger
	err       error
	pool      *rest.PoolInfo
	items     []rest.WorkerInfo
	logInfo   *rest.LogInfo
	logErr    error
	logCancel context.CancelFunc

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowInfo(index int) {
	a.info.SetIndex(index)
	a.show(a.info)
}

// ShowLog shows the log lines of one slot, or the consolidated log if
// index is negative.
func (a *App) ShowLog(index int) {
	if a.logCancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.logCancel = cancel
		go a.refreshLog(ctx)
	}
	a.log.SetIndex(index)
	a.show(a.log)
}

func (a *App) ShowMain() {
	a.show(a.main)
}

func (a *App) StopWorker(index int) {
	go func() {
		if e := a.client.StopWorker(index); e != nil {
			a.Logf("Failed stopping worker %d: %v", index, e)
		}
	}()
}

func (a *App) Quit() {
	/* This just posts the quit event. */
	a.app.Quit()
}

func (a *App) SetLogger(logger *log.Logger) {
	a.logger = logger
}

func (a *App) Logf(fmt string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(fmt, v...)
	}
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		// Intercept a few control keys up front, for global handling.
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}

	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetClient() *rest.Client {
	return a.client
}

func (a *App) GetAppName() string {
	return "Prefork v1.0"
}

func NewApp(client *rest.Client, url string) *App {

	app := &App{}
	app.app = &views.Application{}
	app.client = client
	app.info = NewInfoPanel(app)
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app, url)
	app.panel = app.main

	go app.refresh()
	return app
}

// refresh keeps the app items current, long polling for changes.
func (a *App) refresh() {
	var last *rest.WorkersInfo
	for {
		ctx, cancel := context.WithTimeout(context.Background(),
			time.Hour)
		ws, e := a.client.WatchWorkers(ctx, last)
		cancel()

		var pool *rest.PoolInfo
		var items []rest.WorkerInfo
		if e == nil {
			pool, e = a.client.GetInfo()
			items = append(items, ws.Workers...)
			util.SortWorkers(items)
		}
		a.app.PostFunc(func() {
			a.items = items
			a.pool = pool
			a.err = e
			a.app.Update()
		})
		if e != nil {
			last = nil
			time.Sleep(2 * time.Second)
			continue
		}
		last = ws
	}
}

func (a *App) refreshLog(ctx context.Context) {
	info, e := a.client.GetLog()

	for {
		a.app.PostFunc(func() {
			a.logInfo = info
			a.logErr = e
			a.app.Update()
		})
		select {
		case <-ctx.Done():
			return
		default:
		}
		if e != nil {
			time.Sleep(2 * time.Second)
			info, e = a.client.GetLog()
			continue
		}
		info, e = a.client.WatchLog(ctx, info)
	}
}

func (a *App) GetPool() *rest.PoolInfo {
	return a.pool
}

func (a *App) GetItems() ([]rest.WorkerInfo, error) {
	return a.items, a.err
}

func (a *App) GetItem(index int) (*rest.WorkerInfo, error) {
	if a.err != nil {
		return nil, a.err
	}
	for i := range a.items {
		if a.items[i].Index == index {
			return &a.items[i], nil
		}
	}
	return nil, nil
}

func (a *App) GetLog() (*rest.LogInfo, error) {
	return a.logInfo, a.logErr
}

func (a *App) Run() {
	a.Logf("Starting up user interface")
	a.app.SetRootWidget(a)
	a.ShowMain()
	go func() {
		// Give us periodic updates
		for {
			a.app.Update()
			time.Sleep(time.Second)
		}
	}()
	a.Logf("Starting app loop")
	a.app.Run()
	if a.logCancel != nil {
		a.logCancel()
	}
}
