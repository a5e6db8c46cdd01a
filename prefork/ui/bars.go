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
	"strings"
	"sync"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"
)

// State is the health shown by a StatusBar.
type State int

const (
	StateNormal State = iota
	StateGood
	StateWarn
	StateError
)

var (
	barStyle = tcell.StyleDefault.
			Foreground(tcell.ColorBlack).
			Background(tcell.ColorSilver)
	barAltStyle = tcell.StyleDefault.
			Foreground(tcell.ColorBlue).
			Background(tcell.ColorSilver)

	statusStyles = map[State]tcell.Style{
		StateNormal: barStyle,
		StateGood: tcell.StyleDefault.
			Foreground(tcell.ColorWhite).
			Background(tcell.ColorGreen).
			Bold(true),
		StateWarn: tcell.StyleDefault.
			Foreground(tcell.ColorBlack).
			Background(tcell.ColorYellow),
		StateError: tcell.StyleDefault.
			Foreground(tcell.ColorWhite).
			Background(tcell.ColorMaroon).
			Bold(true),
	}
)

type TitleBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (tb *TitleBar) Init() {
	tb.once.Do(func() {
		tb.SimpleStyledTextBar.Init()
		tb.SimpleStyledTextBar.SetStyle(barStyle)
		tb.RegisterCenterStyle('N', barStyle)
		tb.RegisterCenterStyle('A', barAltStyle)
		tb.RegisterRightStyle('N', barStyle)
		tb.RegisterRightStyle('A', barAltStyle)
	})
}

func NewTitleBar() *TitleBar {
	tb := &TitleBar{}
	tb.Init()
	return tb
}

// KeyBar shows the keys available.  Keys are given as words like
// "[Q] Quit"; the bracketed part is highlighted.
type KeyBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (k *KeyBar) Init() {
	k.once.Do(func() {
		k.SimpleStyledTextBar.Init()
		k.SimpleStyledTextBar.SetStyle(barStyle)
		k.RegisterLeftStyle('N', barStyle)
		k.RegisterLeftStyle('A', barAltStyle.Bold(true))
	})
}

// markup converts key words to the style markup of SimpleStyledTextBar.
func markup(words []string) string {
	var b strings.Builder
	for i, w := range words {
		if i != 0 && len(w) != 0 {
			b.WriteByte(' ')
		}
		w = strings.Replace(w, "%", "%%", -1)
		w = strings.Replace(w, "[", "[%A", -1)
		w = strings.Replace(w, "]", "%N]", -1)
		b.WriteString(w)
	}
	return b.String()
}

func (k *KeyBar) SetKeys(words []string) {
	k.SetLeft(markup(words))
}

func NewKeyBar() *KeyBar {
	kb := &KeyBar{}
	kb.Init()
	return kb
}

// StatusBar is like a titlebar, but it changes color based on the
// state of a screen -- e.g. red background to indicate a fault condition.
type StatusBar struct {
	once   sync.Once
	status string
	views.SimpleStyledTextBar
}

func (sb *StatusBar) Init() {
	sb.once.Do(func() {
		sb.SimpleStyledTextBar.Init()
		sb.SetState(StateNormal)
	})
}

func (sb *StatusBar) SetState(s State) {
	style := statusStyles[s]
	sb.SimpleStyledTextBar.SetStyle(style)
	sb.SimpleStyledTextBar.RegisterLeftStyle('N', style)
	sb.SimpleStyledTextBar.SetLeft(sb.status)
}

func (sb *StatusBar) SetText(status string) {
	sb.status = strings.Replace(status, "%", "%%", -1)
	sb.SetLeft(sb.status)
}

func NewStatusBar() *StatusBar {
	sb := &StatusBar{}
	sb.Init()
	return sb
}
