package qr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"time"

	"go_certhub/internal/storage"

	"github.com/boombuler/barcode"
	boombulerqr "github.com/boombuler/barcode/qr"
	"github.com/sirupsen/logrus"
	skip2 "github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// Output size in logical pixels
	Size = 300

	placeholderText = "QR no disponible"
)

// Tier is one strategy in the ordered fallback chain. A tier is attempted
// only when every tier before it returned an error.
type Tier struct {
	Name   string
	Encode func(url string) ([]byte, error)
}

// Encoder turns a verification URL into a persisted PNG image. QR generation
// must never block certificate issuance: when all rich tiers fail the encoder
// degrades to a hand-drawn placeholder, and only a storage failure is a real
// error.
type Encoder struct {
	store  storage.Store
	logger *logrus.Entry
	tiers  []Tier
}

// NewEncoder creates an encoder with the default tier chain
func NewEncoder(store storage.Store, logger *logrus.Entry) *Encoder {
	return &Encoder{
		store:  store,
		logger: logger.WithField("component", "qr-encoder"),
		tiers:  DefaultTiers(),
	}
}

// NewEncoderWithTiers creates an encoder with an explicit tier chain (tests)
func NewEncoderWithTiers(store storage.Store, logger *logrus.Entry, tiers []Tier) *Encoder {
	e := NewEncoder(store, logger)
	e.tiers = tiers
	return e
}

// DefaultTiers returns the production fallback chain:
// primary QR library → barcode library → drawn placeholder.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "go-qrcode", Encode: encodePrimary},
		{Name: "barcode", Encode: encodeBarcode},
		{Name: "placeholder", Encode: encodePlaceholder},
	}
}

// Generate encodes the URL and persists the PNG to public storage, returning
// a storage-relative path. An empty path with nil error means "QR
// unavailable": every tier failed and the caller must skip QR placement
// rather than fail issuance.
func (e *Encoder) Generate(certificateID int, url string) (string, error) {
	var data []byte
	for _, tier := range e.tiers {
		out, err := tier.Encode(url)
		if err != nil {
			e.logger.WithField("tier", tier.Name).WithError(err).Warn("QR tier failed, trying next")
			continue
		}
		data = out
		break
	}

	if data == nil {
		e.logger.WithField("certificate_id", certificateID).Error("All QR tiers failed, certificate will have no QR")
		return "", nil
	}

	rel := fmt.Sprintf("certificates/qr/%d_%d.png", certificateID, time.Now().UnixNano())
	if err := e.store.Put(storage.Public, rel, data); err != nil {
		return "", fmt.Errorf("failed to persist QR image: %w", err)
	}
	return rel, nil
}

// encodePrimary uses the primary QR library, error correction level M
func encodePrimary(url string) ([]byte, error) {
	code, err := skip2.New(url, skip2.Medium)
	if err != nil {
		return nil, err
	}
	return code.PNG(Size)
}

// encodeBarcode uses the 2D-barcode library as the secondary tier
func encodeBarcode(url string) ([]byte, error) {
	code, err := boombulerqr.Encode(url, boombulerqr.M, boombulerqr.Auto)
	if err != nil {
		return nil, err
	}
	scaled, err := barcode.Scale(code, Size, Size)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodePlaceholder draws the last-resort placeholder: a white canvas with a
// black border and the literal text "QR no disponible".
func encodePlaceholder(string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	black := color.RGBA{A: 255}
	for x := 0; x < Size; x++ {
		for _, y := range []int{0, 1, Size - 2, Size - 1} {
			img.Set(x, y, black)
			img.Set(y, x, black)
		}
	}

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, placeholderText).Ceil()
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(black),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I((Size - textWidth) / 2),
			Y: fixed.I(Size / 2),
		},
	}
	drawer.DrawString(placeholderText)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
