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
	"fmt"
	"time"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/govisor/prefork/prefork/util"
)

type InfoPanel struct {
	text  *views.TextArea
	index int

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}

	p.Panel.Init(app)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.SetContent(p.text)

	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			p.app.ShowMain()
			return true
		case tcell.KeyF1:
			p.app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				p.app.ShowMain()
				return true
			case 'H', 'h':
				p.app.ShowHelp()
				return true
			case 'L', 'l':
				p.app.ShowLog(p.index)
				return true
			case 'S', 's':
				p.app.StopWorker(p.index)
				return true
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) SetIndex(index int) {
	p.index = index
}

// update must be called from the event loop.
func (p *InfoPanel) update() {
	p.SetTitle(fmt.Sprintf("Worker %d", p.index))
	p.SetKeys([]string{"[ESC] Main", "[H] Help", "[L] Log", "[S] Stop"})

	info, e := p.app.GetItem(p.index)
	if e != nil {
		p.SetStatus(fmt.Sprintf("Cannot load worker: %v", e))
		p.SetState(StateError)
		p.text.SetLines(nil)
		return
	}
	if info == nil {
		p.SetStatus("No such worker")
		p.SetState(StateWarn)
		p.text.SetLines(nil)
		return
	}

	status := util.Status(info)
	p.SetStatus(status)
	if status == "running" {
		p.SetState(StateGood)
	} else {
		p.SetState(StateWarn)
	}

	lines := []string{
		fmt.Sprintf("%-10s %d", "Slot:", info.Index),
		fmt.Sprintf("%-10s %d", "Pid:", info.Pid),
		fmt.Sprintf("%-10s %s", "Status:", status),
		fmt.Sprintf("%-10s %d", "Restarts:", info.Restarts),
	}
	if !info.Pending {
		lines = append(lines,
			fmt.Sprintf("%-10s %s", "Started:",
				info.Started.Format(time.RFC1123)),
			fmt.Sprintf("%-10s %s", "Uptime:",
				util.FormatDuration(util.Uptime(info, time.Now()))))
	}
	if pool := p.app.GetPool(); pool != nil {
		lines = append(lines, "",
			fmt.Sprintf("%-10s %s", "Pool:", pool.Name),
			fmt.Sprintf("%-10s %d", "Master:", pool.Pid))
	}
	p.text.SetLines(lines)
}
