package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go_certhub/internal/model"
	"go_certhub/internal/storage"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func testStore(t *testing.T) storage.Store {
	t.Helper()
	dir := t.TempDir()
	d, err := storage.NewDisk(filepath.Join(dir, "public"), filepath.Join(dir, "private"))
	if err != nil {
		t.Fatalf("NewDisk() failed: %v", err)
	}
	return d
}

func newCompositor(t *testing.T, store storage.Store) *Compositor {
	t.Helper()
	fonts := NewFontResolver("", testLogger())
	return NewCompositor(store, fonts, testLogger())
}

// putPNG encodes an image and stores it
func putPNG(t *testing.T, store storage.Store, ns storage.Namespace, rel string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode fixture PNG: %v", err)
	}
	if err := store.Put(ns, rel, buf.Bytes()); err != nil {
		t.Fatalf("Failed to store fixture: %v", err)
	}
}

func whiteBackground(t *testing.T, store storage.Store) string {
	t.Helper()
	bg := imaging.New(800, 600, color.NRGBA{255, 255, 255, 255})
	putPNG(t, store, storage.Private, "templates/bg.png", bg)
	return "templates/bg.png"
}

func testCertificate() *model.Certificate {
	cert := &model.Certificate{ParticipantName: "Jane Doe"}
	cert.ID = 7
	cert.IssueDate = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	return cert
}

func TestComposeMissingBackground(t *testing.T) {
	store := testStore(t)
	c := newCompositor(t, store)

	tpl := &model.CertificateTemplate{FilePath: "templates/missing.png"}
	path, err := c.Compose(testCertificate(), tpl, "")
	if err == nil {
		t.Fatal("Expected error for missing background")
	}
	if path != "" {
		t.Errorf("Expected empty path, got %q", path)
	}
}

func TestComposeNameOnlyChangesImage(t *testing.T) {
	store := testStore(t)
	c := newCompositor(t, store)

	bgRel := whiteBackground(t, store)
	tpl := &model.CertificateTemplate{
		FilePath:     bgRel,
		NamePosition: []byte(`{"x":400,"y":300,"fontSize":48,"color":"#000000"}`),
	}

	path, err := c.Compose(testCertificate(), tpl, "")
	if err != nil {
		t.Fatalf("Compose() failed: %v", err)
	}
	if !strings.HasPrefix(path, "certificates/final/") {
		t.Errorf("Unexpected output path %q", path)
	}

	data, err := store.Get(storage.Public, path)
	if err != nil {
		t.Fatalf("Final image not readable: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Final image is not valid PNG: %v", err)
	}

	// The name must actually be drawn: a pure-white background gains dark pixels
	if !hasDarkPixel(img) {
		t.Error("Composited image is identical to the blank background, name not drawn")
	}
}

func TestComposeMissingQRIsNotFatal(t *testing.T) {
	store := testStore(t)
	c := newCompositor(t, store)

	tpl := &model.CertificateTemplate{
		FilePath:     whiteBackground(t, store),
		NamePosition: []byte(`{"x":400,"y":300,"fontSize":36}`),
		QRPosition:   []byte(`{"x":600,"y":400,"width":120,"height":120}`),
	}

	path, err := c.Compose(testCertificate(), tpl, "certificates/qr/never_written.png")
	if err != nil {
		t.Fatalf("Compose() must not fail on missing QR file: %v", err)
	}
	if path == "" {
		t.Error("Expected a final image path even without the QR")
	}
}

func TestComposePastesQR(t *testing.T) {
	store := testStore(t)
	c := newCompositor(t, store)

	// Solid red stand-in for a QR image, easy to detect after pasting
	qrImg := imaging.New(50, 50, color.NRGBA{255, 0, 0, 255})
	putPNG(t, store, storage.Public, "certificates/qr/7.png", qrImg)

	tpl := &model.CertificateTemplate{
		FilePath:   whiteBackground(t, store),
		QRPosition: []byte(`{"x":100,"y":100,"width":120,"height":120}`),
	}

	path, err := c.Compose(testCertificate(), tpl, "certificates/qr/7.png")
	if err != nil {
		t.Fatalf("Compose() failed: %v", err)
	}

	data, _ := store.Get(storage.Public, path)
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Final image is not valid PNG: %v", err)
	}

	r, g, b, _ := img.At(160, 160).RGBA()
	if r>>8 < 200 || g>>8 > 80 || b>>8 > 80 {
		t.Errorf("Expected red QR pixels inside the pasted region, got rgb(%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestComposeSVGQR(t *testing.T) {
	store := testStore(t)
	c := newCompositor(t, store)

	svg := `<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="50" height="50"><rect width="50" height="50" fill="#000000"/></svg>`
	if err := store.Put(storage.Public, "certificates/qr/7.svg", []byte(svg)); err != nil {
		t.Fatalf("Failed to store SVG fixture: %v", err)
	}

	tpl := &model.CertificateTemplate{
		FilePath:   whiteBackground(t, store),
		QRPosition: []byte(`{"x":100,"y":100,"width":80,"height":80}`),
	}

	path, err := c.Compose(testCertificate(), tpl, "certificates/qr/7.svg")
	if err != nil {
		t.Fatalf("Compose() failed: %v", err)
	}

	data, _ := store.Get(storage.Public, path)
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Final image is not valid PNG: %v", err)
	}
	if !hasDarkPixel(img) {
		t.Error("Rasterized SVG QR was not drawn onto the background")
	}
}

func hasDarkPixel(img image.Image) bool {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r>>8 < 128 && g>>8 < 128 && b>>8 < 128 {
				return true
			}
		}
	}
	return false
}

func TestParseHexColor(t *testing.T) {
	cases := []struct {
		in   string
		want color.RGBA
	}{
		{"#ff0000", color.RGBA{255, 0, 0, 255}},
		{"#0f0", color.RGBA{0, 255, 0, 255}},
		{"336699", color.RGBA{0x33, 0x66, 0x99, 255}},
		{"", color.RGBA{0, 0, 0, 255}},
		{"not-a-color", color.RGBA{0, 0, 0, 255}},
	}
	for _, c := range cases {
		got := parseHexColor(c.in)
		r, g, b, a := got.RGBA()
		want := c.want
		if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B || uint8(a>>8) != want.A {
			t.Errorf("parseHexColor(%q) = rgba(%d,%d,%d,%d), want %+v", c.in, r>>8, g>>8, b>>8, a>>8, want)
		}
	}
}
