// Package render draws client frames onto a tcell screen.
package render

import (
	"dungeon/internal/client"
	"dungeon/internal/gamemap"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// Renderer draws frames onto a tcell screen.
type Renderer struct {
	screen tcell.Screen
	camera *Camera
	theme  Theme
}

// NewRenderer creates a Renderer for the given screen.
func NewRenderer(screen tcell.Screen) *Renderer {
	r := &Renderer{screen: screen, camera: NewCamera(0, 0), theme: DefaultTheme}
	r.Resize()
	return r
}

// SetTheme replaces the terrain glyphs.
func (r *Renderer) SetTheme(t Theme) { r.theme = t }

// Resize adapts the viewport to the current screen size. The bottom rows
// are reserved for the HUD.
func (r *Renderer) Resize() {
	w, h := r.screen.Size()
	r.camera.ViewWidth = w
	r.camera.ViewHeight = max(h-HUDHeight, 0)
}

// Camera returns the viewport.
func (r *Renderer) Camera() *Camera { return r.camera }

// Draw renders one frame and shows it.
func (r *Renderer) Draw(f client.Frame) {
	r.screen.Clear()
	switch {
	case f.Refused:
		r.drawCentered(0, "This identity is already playing elsewhere.", styleWarn)
		r.drawCentered(2, "Press q to quit.", styleHUD)
	case !f.Ready:
		r.drawCentered(0, "Connecting…", styleHUD)
	default:
		r.camera.CenterOn(f.Me.At)
		r.drawMap(f.Tiles)
		r.drawPlayers(f)
		r.DrawHUD(f)
	}
	r.screen.Show()
}

// drawMap renders the lit and remembered tiles of the window.
func (r *Renderer) drawMap(tiles []client.FrameTile) {
	for _, t := range tiles {
		if !t.Present || (!t.InFOV && !t.Explored) {
			continue
		}
		sx, sy, onScreen := r.camera.WorldToScreen(t.Pos)
		if !onScreen {
			continue
		}
		var glyph string
		switch {
		case t.InFOV && t.Kind == gamemap.TileFloor:
			glyph = r.theme.Floor
		case t.InFOV:
			glyph = r.theme.Wall
		case t.Kind == gamemap.TileFloor:
			glyph = r.theme.DimFloor
		default:
			glyph = r.theme.DimWall
		}
		r.putGlyph(sx, sy, glyph, styleBase)
	}
}

// drawPlayers renders the other players, then the local one on top.
func (r *Renderer) drawPlayers(f client.Frame) {
	for _, s := range f.Players {
		r.drawSprite(s, styleOther)
	}
	r.drawSprite(f.Me, styleSelf)
}

func (r *Renderer) drawSprite(s client.Sprite, style tcell.Style) {
	sx, sy, onScreen := r.camera.VecToScreen(s.At)
	if !onScreen {
		return
	}
	glyph := AvatarGlyph(s.Avatar)
	if !s.Connected {
		glyph = sleepingGlyph
	}
	r.putGlyph(sx, sy, glyph, style)
	if s.PressingKey && sy > 0 {
		if arrow, ok := facingRunes[s.Direction]; ok {
			r.screen.SetContent(sx, sy-1, arrow, nil, style)
		}
	}
}

// putGlyph draws a single glyph (ASCII or multi-rune emoji) at screen position (x, y).
func (r *Renderer) putGlyph(x, y int, glyph string, style tcell.Style) {
	runes := []rune(glyph)
	if len(runes) == 0 {
		return
	}
	mainc := runes[0]
	var combc []rune
	if len(runes) > 1 {
		combc = runes[1:]
	}
	r.screen.SetContent(x, y, mainc, combc, style)
	if runewidth.StringWidth(glyph) == 2 {
		// Fill the second column to avoid rendering artifacts.
		r.screen.SetContent(x+1, y, ' ', nil, style)
	}
}
