package templates

import (
	"encoding/json"
	"fmt"

	"go_certhub/internal/model"

	"gorm.io/datatypes"
)

// Position origins accepted on input. Positions are always persisted as
// absolute pixels; center-relative input is resolved against the editor
// canvas before it ever reaches the database.
const (
	OriginAbsolute = "absolute"
	OriginCenter   = "center"
)

// PositionInput is the wire shape of an overlay element position
type PositionInput struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Origin     string  `json:"origin"`
	FontFamily string  `json:"fontFamily"`
	FontSize   float64 `json:"fontSize"`
	FontWeight string  `json:"fontWeight"`
	Color      string  `json:"color"`
	Rotation   float64 `json:"rotation"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// StylesInput is the wire shape of template-level styles
type StylesInput struct {
	EditorCanvasWidth  int      `json:"editorCanvasWidth"`
	EditorCanvasHeight int      `json:"editorCanvasHeight"`
	BackgroundOffsetX  int      `json:"backgroundOffsetX"`
	BackgroundOffsetY  int      `json:"backgroundOffsetY"`
	Components         []string `json:"components"`
}

// canonicalize resolves a position to absolute pixel coordinates. Center
// origin needs the editor canvas size from the styles block.
func (p *PositionInput) canonicalize(styles *StylesInput) (*model.ElementPosition, error) {
	if p == nil {
		return nil, nil
	}

	x, y := p.X, p.Y
	switch p.Origin {
	case "", OriginAbsolute:
	case OriginCenter:
		if styles == nil || styles.EditorCanvasWidth <= 0 || styles.EditorCanvasHeight <= 0 {
			return nil, fmt.Errorf("center-origin position requires editor canvas dimensions in templateStyles")
		}
		x = styles.EditorCanvasWidth/2 + p.X
		y = styles.EditorCanvasHeight/2 + p.Y
	default:
		return nil, fmt.Errorf("unknown position origin %q", p.Origin)
	}

	return &model.ElementPosition{
		X:          x,
		Y:          y,
		FontFamily: p.FontFamily,
		FontSize:   p.FontSize,
		FontWeight: p.FontWeight,
		Color:      p.Color,
		Rotation:   p.Rotation,
		Width:      p.Width,
		Height:     p.Height,
	}, nil
}

func encodePosition(pos *model.ElementPosition) (datatypes.JSON, error) {
	if pos == nil {
		return nil, nil
	}
	raw, err := json.Marshal(pos)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func encodeStyles(styles *StylesInput) (datatypes.JSON, error) {
	if styles == nil {
		return nil, nil
	}
	raw, err := json.Marshal(model.TemplateStyles{
		EditorCanvasWidth:  styles.EditorCanvasWidth,
		EditorCanvasHeight: styles.EditorCanvasHeight,
		BackgroundOffsetX:  styles.BackgroundOffsetX,
		BackgroundOffsetY:  styles.BackgroundOffsetY,
		Components:         styles.Components,
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
