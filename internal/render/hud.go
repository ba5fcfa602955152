package render

import (
	"dungeon/internal/client"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// HUDHeight is the number of rows reserved under the map.
const HUDHeight = 5

// DrawHUD renders the status bar and message log at the bottom of the screen.
func (r *Renderer) DrawHUD(f client.Frame) {
	_, screenH := r.screen.Size()
	hudY := screenH - HUDHeight

	r.drawHLine(hudY, tcell.ColorGray)

	me := f.Me
	status := fmt.Sprintf("%s [%s]  %s  facing %s  players in view: %d",
		me.Identity, me.Avatar, me.Cell, me.Direction, len(f.Players))
	if f.Waiting {
		status += "  …"
	}
	r.drawText(0, hudY+1, status, styleHUD)

	// Message log (last 3 messages).
	start := max(len(f.Messages)-3, 0)
	for i, msg := range f.Messages[start:] {
		r.drawText(0, hudY+2+i, msg, styleMessage)
	}
}

func (r *Renderer) drawHLine(y int, color tcell.Color) {
	w, _ := r.screen.Size()
	style := tcell.StyleDefault.Foreground(color)
	for x := 0; x < w; x++ {
		r.screen.SetContent(x, y, '─', nil, style)
	}
}

func (r *Renderer) drawText(x, y int, text string, style tcell.Style) {
	col := x
	for _, ch := range text {
		r.screen.SetContent(col, y, ch, nil, style)
		col += max(runewidth.RuneWidth(ch), 1)
	}
}

// drawCentered writes a line in the middle of the screen.
func (r *Renderer) drawCentered(dy int, text string, style tcell.Style) {
	w, h := r.screen.Size()
	x := max((w-runewidth.StringWidth(text))/2, 0)
	r.drawText(x, h/2+dy, text, style)
}
