package pdf

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Fallback page dimensions in pixels when the image cannot be probed.
// Matches the common certificate canvas of 2100x1480.
const (
	defaultWidthPx  = 2100
	defaultHeightPx = 1480
)

// mmPerPixel converts 96 DPI pixels to millimeters
const mmPerPixel = 25.4 / 96.0

// Wrap embeds a rendered certificate image into a single-page PDF whose
// page size matches the image exactly, with no margins or scaling borders.
// Orientation is landscape when the image is at least as wide as it is
// tall, portrait otherwise.
func Wrap(imageData []byte) ([]byte, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	widthPx, heightPx := probeDimensions(imageData)

	widthMM := float64(widthPx) * mmPerPixel
	heightMM := float64(heightPx) * mmPerPixel

	orientation := "P"
	if widthPx >= heightPx {
		orientation = "L"
		// gofpdf expects the size in portrait order and swaps it for "L"
		widthMM, heightMM = heightMM, widthMM
	}

	doc := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: widthMM, Ht: heightMM},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()

	imageType := sniffImageType(imageData)
	opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: false}
	doc.RegisterImageOptionsReader("certificate", opts, bytes.NewReader(imageData))

	pageW, pageH := doc.GetPageSize()
	doc.ImageOptions("certificate", 0, 0, pageW, pageH, false, opts, 0, "")

	if doc.Err() {
		return nil, fmt.Errorf("failed to build PDF: %s", doc.Error())
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// probeDimensions reads the image header for its pixel size, falling back
// to the default canvas when the data is not a decodable image.
func probeDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return defaultWidthPx, defaultHeightPx
	}
	return cfg.Width, cfg.Height
}

func sniffImageType(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "PNG"
	}
	return strings.ToUpper(format)
}
