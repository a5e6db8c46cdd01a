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

	"github.com/govisor/prefork/rest"
)

// LogPanel shows the pool log, either in full or only the lines
// forwarded from one slot.
type LogPanel struct {
	text  *views.TextArea
	index int // slot index, negative for the consolidated log

	Panel
}

func NewLogPanel(app *App) *LogPanel {
	p := &LogPanel{index: -1}

	p.Panel.Init(app)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(tcell.StyleDefault.
		Foreground(tcell.ColorSilver).Background(tcell.ColorBlack))
	p.SetContent(p.text)

	return p
}

func (p *LogPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *LogPanel) HandleEvent(ev tcell.Event) bool {
	app := p.app
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'A', 'a':
				p.SetIndex(-1)
				return true
			case 'I', 'i':
				if p.index >= 0 {
					app.ShowInfo(p.index)
					return true
				}
			case 'S', 's':
				if p.index >= 0 {
					app.StopWorker(p.index)
					return true
				}
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *LogPanel) SetIndex(index int) {
	p.SetTitle("Loading")
	p.text.SetLines(nil)
	p.index = index
}

// filterLog returns the display lines for the records of one slot, or
// of all of them if index is negative.
func filterLog(recs []rest.LogRecord, index int) []string {
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		if index >= 0 && r.Worker != index {
			continue
		}
		line := fmt.Sprintf("%s [%d] %s",
			r.Time.Format(time.StampMilli), r.Pid, r.Text)
		lines = append(lines, line)
	}
	return lines
}

// update must be called from the event loop.
func (p *LogPanel) update() {

	loginfo, e := p.app.GetLog()

	words := []string{"[ESC] Main", "[H] Help"}

	if p.index < 0 {
		p.SetTitle("Consolidated Log")
	} else {
		p.SetTitle(fmt.Sprintf("Log for worker %d", p.index))
		words = append(words, "[A] All", "[I] Info", "[S] Stop")
	}
	p.SetKeys(words)

	if loginfo == nil {
		if e != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", e))
			p.SetState(StateError)
		} else {
			p.SetStatus("Loading ...")
			p.SetState(StateNormal)
		}
		p.text.SetLines([]string{""})
		return
	}

	lines := filterLog(loginfo.Records, p.index)
	p.SetStatus(fmt.Sprintf("%d lines", len(lines)))
	p.SetState(StateNormal)
	if e != nil {
		p.SetState(StateWarn)
	}
	p.text.SetLines(lines)
}
