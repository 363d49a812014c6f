// Package screenshot owns on-disk screenshot storage, recompressed encoding
// for VLM payloads, and the solid-black placeholder frame the capture
// service falls back to when the device can't decode.
package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// Config configures the Manager.
type Config struct {
	Enabled        bool
	StorageDir     string
	MaxScreenshots int
	ImageFormat    string // "png" (default) or "jpeg"
	Quality        int    // JPEG quality, 1-100, default 90
}

func (c *Config) applyDefaults() {
	if c.ImageFormat == "" {
		c.ImageFormat = "png"
	}
	if c.Quality == 0 {
		c.Quality = 90
	}
}

// Preset bundles the JPEG quality tradeoff for VLM-bound screenshots. There
// is no width knob: the model's returned coordinates refer to the screen at
// capture time, so every preset re-encodes at the original resolution and
// only trades off compression quality.
type Preset struct {
	Quality int
}

var (
	PresetEfficient = Preset{Quality: 50}
	PresetBalanced  = Preset{Quality: 70}
	PresetQuality   = Preset{Quality: 80}
	PresetMaximum   = Preset{Quality: 90}
)

// Manager owns the storage directory and encodes frames.
type Manager struct {
	config Config
}

// NewManager creates a Manager, applying defaults and creating StorageDir if
// set.
func NewManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.applyDefaults()
	if c.StorageDir != "" {
		_ = os.MkdirAll(c.StorageDir, 0o755)
	}
	return &Manager{config: c}
}

// Save writes data to StorageDir under a sanitized, timestamped name derived
// from name, returning the full path. It enforces MaxScreenshots by
// deleting the oldest screenshot files once the limit is exceeded.
func (m *Manager) Save(data []byte, name string) (string, error) {
	if m.config.StorageDir == "" {
		return "", fmt.Errorf("screenshot: no storage directory configured")
	}
	ext := "png"
	if m.config.ImageFormat == "jpeg" {
		ext = "jpg"
	}
	filename := fmt.Sprintf("%s_%d.%s", sanitizeFilename(name), time.Now().UnixNano(), ext)
	path := filepath.Join(m.config.StorageDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("screenshot: save %s: %w", path, err)
	}
	m.cleanup()
	return path, nil
}

// List returns the paths of stored screenshot files, oldest first.
func (m *Manager) List() ([]string, error) {
	if m.config.StorageDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(m.config.StorageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("screenshot: list: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isScreenshotFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(m.config.StorageDir, e.Name()))
	}
	sort.Slice(paths, func(i, j int) bool {
		fi, _ := os.Stat(paths[i])
		fj, _ := os.Stat(paths[j])
		if fi == nil || fj == nil {
			return paths[i] < paths[j]
		}
		return fi.ModTime().Before(fj.ModTime())
	})
	return paths, nil
}

// Clear removes every stored screenshot file, leaving other files in
// StorageDir untouched.
func (m *Manager) Clear() error {
	paths, err := m.List()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("screenshot: clear %s: %w", p, err)
		}
	}
	return nil
}

// cleanup deletes the oldest files once MaxScreenshots is exceeded.
func (m *Manager) cleanup() {
	if m.config.MaxScreenshots <= 0 {
		return
	}
	paths, err := m.List()
	if err != nil {
		return
	}
	excess := len(paths) - m.config.MaxScreenshots
	for i := 0; i < excess; i++ {
		_ = os.Remove(paths[i])
	}
}

// EncodeForVLM decodes a PNG/JPEG frame and re-encodes it as JPEG at
// preset.Quality, at its original resolution. It never resizes: the
// coordinates a model returns refer to the screen at capture time, so any
// resize would bias every action derived from this frame. It returns the
// encoded bytes plus the (unchanged) dimensions, so callers can confirm they
// match the backend's reported screen size.
func EncodeForVLM(data []byte, preset Preset) ([]byte, int, int, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("screenshot: decode: %w", err)
	}

	quality := preset.Quality
	if quality <= 0 {
		quality = PresetBalanced.Quality
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	encoded, err := encodeJPEG(img, quality)
	return encoded, width, height, err
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("screenshot: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Placeholder synthesizes a solid-black PNG at the given dimensions. Used by
// capture.Service whenever the device backend can't supply a decodable or
// permitted frame, so a placeholder frame's dimensions equal the backend's
// reported screen size.
func Placeholder(width, height int) ([]byte, error) {
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("screenshot: encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

var nonFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._\- ]`)

// sanitizeFilename strips characters unsafe for filenames and truncates to
// 50 characters.
func sanitizeFilename(name string) string {
	if name == "" {
		return "screenshot"
	}
	cleaned := nonFilenameChars.ReplaceAllString(name, "")
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	if cleaned == "" {
		// every character was a stripped symbol; fall back to underscores
		// sized to input.
		cleaned = strings.Repeat("_", len(name))
	}
	if len(cleaned) > 50 {
		cleaned = cleaned[:50]
	}
	return cleaned
}

func isScreenshotFile(name string) bool {
	return strings.HasSuffix(name, ".png") || strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg")
}
