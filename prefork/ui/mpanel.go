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
	"github.com/govisor/prefork/rest"
)

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
)

// MainPanel implements a Widget as a Panel, but provides the data
// model and handling for the content area, using data loaded from a
// preforkd REST API service.  Line 0 is a heading; worker slots follow.
type MainPanel struct {
	selected int // slot index, -1 for none
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	items    []rest.WorkerInfo
	content  *views.CellView

	Panel
}

// mainModel provides the model for a CellArea.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App, server string) *MainPanel {
	m := &MainPanel{selected: -1}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle(server)
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			m.App().ShowHelp()
			return true
		case tcell.KeyEnter:
			if m.selected >= 0 {
				m.App().ShowInfo(m.selected)
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				m.App().Quit()
				return true
			case 'H', 'h':
				m.App().ShowHelp()
				return true
			case 'I', 'i':
				if m.selected >= 0 {
					m.App().ShowInfo(m.selected)
					return true
				}
			case 'L', 'l':
				m.App().ShowLog(m.selected)
				return true
			case 'S', 's':
				if m.selected >= 0 {
					m.App().StopWorker(m.selected)
					return true
				}
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

// Model items
func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	var ch rune
	var style tcell.Style

	m := model.m

	if y < 0 || y >= len(m.lines) {
		return ch, StyleNormal, nil, 1
	}

	if x >= 0 && x < len(m.lines[y]) {
		ch = rune(m.lines[y][x])
	} else {
		ch = ' '
	}
	style = m.styles[y]
	if y > 0 && m.items[y-1].Index == m.selected {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	// This assumes that all content is displayable runes of width 1.
	m := model.m
	return m.width, len(m.lines)
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	if m.curx > m.width-1 {
		m.curx = m.width - 1
	}
	if m.cury > m.height {
		m.cury = m.height
	}
	if m.curx < 0 {
		m.curx = 0
	}
	// The heading is not selectable.
	if m.cury < 1 {
		m.cury = 1
	}
	if selected && m.height > 0 {
		m.selected = m.items[m.cury-1].Index
	} else {
		m.cury = 0
		m.selected = -1
	}
}

// update is called to update content, e.g. in response to Draw() or
// as part of another update.  It is called from the event loop.
func (m *MainPanel) update() {

	items, err := m.App().GetItems()
	m.items = items

	if pool := m.App().GetPool(); pool != nil {
		m.SetTitle(fmt.Sprintf("%s (master %d)", pool.Name, pool.Pid))
	}

	// preserve the selected slot
	if m.selected >= 0 {
		found := false
		for i, item := range m.items {
			if item.Index == m.selected {
				m.cury = i + 1
				found = true
			}
		}
		if !found {
			m.selected = -1
			m.cury = 0
		}
	}
	if err != nil {
		if e, ok := err.(*rest.Error); ok && e.Code == 401 {
			m.SetStatus("Unauthorized (use -u user:pass)")
		} else {
			m.SetStatus(fmt.Sprintf("Cannot load workers: %v", err))
		}
		m.SetState(StateError)
		m.lines = []string{}
		m.styles = []tcell.Style{}
		m.height = 0
		return
	}

	head := fmt.Sprintf("%6s %8s %8s %10s %8s",
		"SLOT", "PID", "STATUS", "UPTIME", "RESTARTS")
	lines := []string{head}
	styles := []tcell.Style{StyleNormal.Bold(true)}

	m.width = len(head)
	m.height = 0

	now := time.Now()
	for i := range items {
		info := &items[i]
		line := fmt.Sprintf("%6d %8d %8s %10s %8d",
			info.Index, info.Pid, util.Status(info),
			util.FormatDuration(util.Uptime(info, now)),
			info.Restarts)

		if len(line) > m.width {
			m.width = len(line)
		}
		m.height++

		lines = append(lines, line)
		if util.Status(info) == "running" {
			styles = append(styles, StyleGood)
		} else {
			styles = append(styles, StyleWarn)
		}
	}

	m.lines = lines
	m.styles = styles

	running, pending := util.Counts(items)
	m.SetStatus(fmt.Sprintf("%6d Workers %6d Running %6d Pending",
		len(items), running, pending))

	if pending > 0 {
		m.SetState(StateWarn)
	} else if running > 0 {
		m.SetState(StateGood)
	} else {
		m.SetState(StateNormal)
	}

	words := []string{"[Q] Quit", "[H] Help"}
	if m.selected >= 0 {
		words = append(words, "[I] Info", "[S] Stop")
	}
	words = append(words, "[L] Log")
	m.SetKeys(words)
}
