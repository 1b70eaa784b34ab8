package templates

import (
	"encoding/json"
	"testing"

	"go_certhub/internal/model"
)

func TestCanonicalizeAbsolutePassthrough(t *testing.T) {
	in := &PositionInput{X: 120, Y: 340, FontSize: 36, Color: "#1a2b3c", Rotation: 15}

	pos, err := in.canonicalize(nil)
	if err != nil {
		t.Fatalf("canonicalize() failed: %v", err)
	}
	if pos.X != 120 || pos.Y != 340 {
		t.Errorf("Position = (%d,%d), want (120,340)", pos.X, pos.Y)
	}
	if pos.FontSize != 36 || pos.Color != "#1a2b3c" || pos.Rotation != 15 {
		t.Errorf("Styling fields not carried over: %+v", pos)
	}
}

func TestCanonicalizeEmptyOriginIsAbsolute(t *testing.T) {
	in := &PositionInput{X: 10, Y: 20}
	pos, err := in.canonicalize(&StylesInput{EditorCanvasWidth: 2100, EditorCanvasHeight: 1480})
	if err != nil {
		t.Fatalf("canonicalize() failed: %v", err)
	}
	if pos.X != 10 || pos.Y != 20 {
		t.Errorf("Position = (%d,%d), want (10,20)", pos.X, pos.Y)
	}
}

func TestCanonicalizeCenterOrigin(t *testing.T) {
	styles := &StylesInput{EditorCanvasWidth: 2100, EditorCanvasHeight: 1480}
	in := &PositionInput{X: -100, Y: 50, Origin: OriginCenter}

	pos, err := in.canonicalize(styles)
	if err != nil {
		t.Fatalf("canonicalize() failed: %v", err)
	}
	if pos.X != 950 {
		t.Errorf("X = %d, want 950 (2100/2 - 100)", pos.X)
	}
	if pos.Y != 790 {
		t.Errorf("Y = %d, want 790 (1480/2 + 50)", pos.Y)
	}
}

func TestCanonicalizeCenterWithoutCanvas(t *testing.T) {
	in := &PositionInput{X: 0, Y: 0, Origin: OriginCenter}

	if _, err := in.canonicalize(nil); err == nil {
		t.Error("Expected an error without styles")
	}
	if _, err := in.canonicalize(&StylesInput{EditorCanvasWidth: 2100}); err == nil {
		t.Error("Expected an error with zero canvas height")
	}
}

func TestCanonicalizeUnknownOrigin(t *testing.T) {
	in := &PositionInput{Origin: "topleft"}
	if _, err := in.canonicalize(nil); err == nil {
		t.Error("Expected an error for an unknown origin")
	}
}

func TestCanonicalizeNilInput(t *testing.T) {
	var in *PositionInput
	pos, err := in.canonicalize(nil)
	if err != nil {
		t.Fatalf("canonicalize() failed: %v", err)
	}
	if pos != nil {
		t.Errorf("Expected nil position, got %+v", pos)
	}
}

func TestEncodePositionRoundTrip(t *testing.T) {
	raw, err := encodePosition(&model.ElementPosition{X: 400, Y: 300, FontSize: 24})
	if err != nil {
		t.Fatalf("encodePosition() failed: %v", err)
	}

	var decoded model.ElementPosition
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if decoded.X != 400 || decoded.Y != 300 || decoded.FontSize != 24 {
		t.Errorf("Decoded = %+v", decoded)
	}

	nilRaw, err := encodePosition(nil)
	if err != nil || nilRaw != nil {
		t.Errorf("encodePosition(nil) = (%v, %v), want (nil, nil)", nilRaw, err)
	}
}
