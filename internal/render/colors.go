package render

import (
	"dungeon/internal/grid"

	"github.com/gdamore/tcell/v2"
)

// Theme holds the glyphs used to draw terrain. Emoji are rendered by the
// terminal with their own colors, so lit and remembered tiles use distinct
// glyphs instead of tinting.
type Theme struct {
	Wall     string // lit wall
	Floor    string // lit floor
	DimWall  string // explored but not currently visible wall
	DimFloor string // explored but not currently visible floor
}

// DefaultTheme is a stone dungeon.
var DefaultTheme = Theme{
	Wall:     "🧱",
	Floor:    "🟫",
	DimWall:  "🌑",
	DimFloor: "🔲",
}

// avatarGlyphs maps avatar names to their sprite.
var avatarGlyphs = map[string]string{
	"knight": "🤺",
	"wizard": "🧙",
	"rogue":  "🥷",
	"cleric": "😇",
	"ranger": "🏹",
	"bard":   "🎻",
}

const (
	unknownAvatar = "🙂"
	sleepingGlyph = "💤"
)

// AvatarGlyph returns the sprite for an avatar name.
func AvatarGlyph(avatar string) string {
	if g, ok := avatarGlyphs[avatar]; ok {
		return g
	}
	return unknownAvatar
}

// Facing arrows, drawn next to a sprite while its key is held.
var facingRunes = map[grid.Direction]rune{
	grid.Up:    '↑',
	grid.Down:  '↓',
	grid.Left:  '←',
	grid.Right: '→',
}

var (
	styleBase    = tcell.StyleDefault.Background(tcell.ColorBlack)
	styleSelf    = styleBase.Foreground(tcell.ColorYellow)
	styleOther   = styleBase.Foreground(tcell.ColorAqua)
	styleHUD     = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleMessage = tcell.StyleDefault.Foreground(tcell.ColorLightYellow)
	styleWarn    = tcell.StyleDefault.Foreground(tcell.ColorRed)
)
