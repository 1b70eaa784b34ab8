package render

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontResolver maps a font family name to a TTF file under the configured
// directory. A missing family is non-fatal: Face falls back to the built-in
// Go fonts so name drawing always has a usable face.
type FontResolver struct {
	dir    string
	logger *logrus.Entry

	mu    sync.Mutex
	cache map[string]font.Face
}

// NewFontResolver creates a resolver over a directory of TTF files
func NewFontResolver(dir string, logger *logrus.Entry) *FontResolver {
	return &FontResolver{
		dir:    dir,
		logger: logger.WithField("component", "font-resolver"),
		cache:  make(map[string]font.Face),
	}
}

// Resolve returns the path of the TTF file for a family, or "" when the
// family has no local font file.
func (r *FontResolver) Resolve(family string) string {
	if family == "" || r.dir == "" {
		return ""
	}

	candidates := []string{
		family + ".ttf",
		strings.ReplaceAll(family, " ", "") + ".ttf",
		strings.ReplaceAll(family, " ", "-") + ".ttf",
		strings.ToLower(strings.ReplaceAll(family, " ", "-")) + ".ttf",
	}
	for _, name := range candidates {
		path := filepath.Join(r.dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Face returns a font face for the family at the given pixel size. Bold
// weights map to a "-Bold" file when present, else to the built-in bold.
func (r *FontResolver) Face(family string, size float64, weight string) font.Face {
	if size <= 0 {
		size = 24
	}

	bold := strings.EqualFold(weight, "bold") || weight == "700" || weight == "800" || weight == "900"

	lookup := family
	if bold && family != "" && r.Resolve(family+"-Bold") != "" {
		lookup = family + "-Bold"
	}

	key := lookup + "|" + weight + "|" + strconv.FormatFloat(size, 'f', 2, 64)

	r.mu.Lock()
	defer r.mu.Unlock()
	if face, ok := r.cache[key]; ok {
		return face
	}

	face := r.loadFace(lookup, size, bold)
	r.cache[key] = face
	return face
}

func (r *FontResolver) loadFace(family string, size float64, bold bool) font.Face {
	if path := r.Resolve(family); path != "" {
		face, err := loadFaceFromFile(path, size)
		if err == nil {
			return face
		}
		r.logger.WithField("font", path).WithError(err).Warn("Failed to load font file, using built-in")
	} else if family != "" {
		r.logger.WithField("family", family).Debug("Font family not found locally, using built-in")
	}

	data := goregular.TTF
	if bold {
		data = gobold.TTF
	}
	face, err := newFace(data, size)
	if err != nil {
		// The built-in Go fonts are compiled in; parsing them cannot fail
		r.logger.WithError(err).Error("Failed to load built-in font")
		return nil
	}
	return face
}

func loadFaceFromFile(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newFace(data, size)
}

func newFace(ttf []byte, size float64) (font.Face, error) {
	parsed, err := opentype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
