package render

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"strconv"
	"strings"
	"time"

	"go_certhub/internal/model"
	"go_certhub/internal/qr"
	"go_certhub/internal/storage"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/sirupsen/logrus"
)

// Compositor overlays the participant name, issue date and QR image onto a
// template background and persists the flattened result.
//
// Only an unreadable background aborts composition; each overlay step fails
// independently so a broken font never blocks QR placement and vice versa.
type Compositor struct {
	store  storage.Store
	fonts  *FontResolver
	logger *logrus.Entry
}

// NewCompositor creates a compositor
func NewCompositor(store storage.Store, fonts *FontResolver, logger *logrus.Entry) *Compositor {
	return &Compositor{
		store:  store,
		fonts:  fonts,
		logger: logger.WithField("component", "compositor"),
	}
}

// Compose renders the final certificate image and returns its
// storage-relative path in the public namespace.
func (c *Compositor) Compose(cert *model.Certificate, tpl *model.CertificateTemplate, qrPath string) (string, error) {
	if tpl.FilePath == "" {
		return "", fmt.Errorf("template %d has no background image", tpl.ID)
	}

	bgData, err := c.store.Get(storage.Private, tpl.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to read template background %s: %w", tpl.FilePath, err)
	}
	bg, err := imaging.Decode(bytes.NewReader(bgData))
	if err != nil {
		return "", fmt.Errorf("failed to decode template background %s: %w", tpl.FilePath, err)
	}

	dc := gg.NewContextForImage(bg)

	log := c.logger.WithField("certificate_id", cert.ID)

	if pos, err := tpl.NamePos(); err != nil {
		log.WithError(err).Error("Invalid name position, skipping name")
	} else if pos != nil {
		if err := c.drawText(dc, cert.ParticipantName, pos); err != nil {
			log.WithError(err).Error("Failed to draw participant name")
		}
	}

	if pos, err := tpl.DatePos(); err != nil {
		log.WithError(err).Error("Invalid date position, skipping date")
	} else if pos != nil {
		if err := c.drawText(dc, cert.IssueDate.Format("02/01/2006"), pos); err != nil {
			log.WithError(err).Error("Failed to draw issue date")
		}
	}

	if pos, err := tpl.QRPos(); err != nil {
		log.WithError(err).Error("Invalid QR position, skipping QR")
	} else if pos != nil {
		if err := c.drawQR(dc, qrPath, pos); err != nil {
			log.WithError(err).Warn("Skipping QR placement")
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return "", fmt.Errorf("failed to encode final image: %w", err)
	}

	rel := fmt.Sprintf("certificates/final/%d_%d.png", cert.ID, time.Now().UnixNano())
	if err := c.store.Put(storage.Public, rel, buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to persist final image: %w", err)
	}
	return rel, nil
}

// drawText draws a string centered both horizontally and vertically on the
// element's anchor point, rotated about the anchor when configured.
func (c *Compositor) drawText(dc *gg.Context, text string, pos *model.ElementPosition) error {
	face := c.fonts.Face(pos.FontFamily, pos.FontSize, pos.FontWeight)
	if face == nil {
		return fmt.Errorf("no usable font face for family %q", pos.FontFamily)
	}
	dc.SetFontFace(face)
	dc.SetColor(parseHexColor(pos.Color))

	x, y := float64(pos.X), float64(pos.Y)
	if pos.Rotation != 0 {
		dc.Push()
		dc.RotateAbout(gg.Radians(pos.Rotation), x, y)
		defer dc.Pop()
	}
	dc.DrawStringAnchored(text, x, y, 0.5, 0.5)
	return nil
}

// drawQR pastes the QR image at the element's top-left coordinate, resized
// to the configured width/height. A missing file or an unrasterizable SVG
// skips placement without failing the composition.
func (c *Compositor) drawQR(dc *gg.Context, qrPath string, pos *model.ElementPosition) error {
	if qrPath == "" {
		return fmt.Errorf("no QR image available")
	}
	if !c.store.Exists(storage.Public, qrPath) {
		return fmt.Errorf("QR image %s does not exist", qrPath)
	}

	data, err := c.store.Get(storage.Public, qrPath)
	if err != nil {
		return fmt.Errorf("failed to read QR image %s: %w", qrPath, err)
	}

	w, h := pos.Width, pos.Height
	if w <= 0 {
		w = qr.Size
	}
	if h <= 0 {
		h = qr.Size
	}

	if looksLikeSVG(data) {
		rasterized, err := rasterizeSVG(data, w, h)
		if err != nil {
			return fmt.Errorf("failed to rasterize SVG QR: %w", err)
		}
		dc.DrawImage(rasterized, pos.X, pos.Y)
		return nil
	}

	decoded, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode QR image %s: %w", qrPath, err)
	}
	resized := imaging.Resize(decoded, w, h, imaging.Lanczos)
	dc.DrawImage(resized, pos.X, pos.Y)
	return nil
}

// parseHexColor parses #RGB and #RRGGBB colors, defaulting to black
func parseHexColor(s string) color.Color {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 3:
		expanded := make([]byte, 6)
		for i := 0; i < 3; i++ {
			expanded[2*i] = s[i]
			expanded[2*i+1] = s[i]
		}
		s = string(expanded)
	case 6:
	default:
		return color.Black
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.Black
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}
}
