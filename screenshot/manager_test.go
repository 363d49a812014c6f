package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func createTestPNG(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(&Config{})
	if m.config.ImageFormat != "png" {
		t.Errorf("default ImageFormat = %q, want png", m.config.ImageFormat)
	}
	if m.config.Quality != 90 {
		t.Errorf("default Quality = %d, want 90", m.config.Quality)
	}
}

func TestNewManagerCustomConfig(t *testing.T) {
	m := NewManager(&Config{ImageFormat: "jpeg", Quality: 80, MaxScreenshots: 10})
	if m.config.ImageFormat != "jpeg" || m.config.Quality != 80 || m.config.MaxScreenshots != 10 {
		t.Errorf("config not preserved: %+v", m.config)
	}
}

func TestNewManagerCreatesStorageDir(t *testing.T) {
	tempDir := t.TempDir()
	storageDir := filepath.Join(tempDir, "screenshots")
	m := NewManager(&Config{StorageDir: storageDir})

	if _, err := os.Stat(storageDir); os.IsNotExist(err) {
		t.Error("StorageDir should be created")
	}
	if m.config.StorageDir != storageDir {
		t.Errorf("StorageDir = %q, want %q", m.config.StorageDir, storageDir)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"simple", "simple"},
		{"with spaces", "with_spaces"},
		{"with/slashes", "withslashes"},
		{"with\\backslash", "withbackslash"},
		{"Special!@#$%", "Special"},
		{"numbers123", "numbers123"},
		{"dashes-and_underscores", "dashes-and_underscores"},
		{"", "screenshot"},
		{"   ", "___"},
		{"a b c", "a_b_c"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := sanitizeFilename(tt.input); got != tt.want {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilenameTruncation(t *testing.T) {
	longName := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	if got := sanitizeFilename(longName); len(got) > 50 {
		t.Errorf("length = %d, want <= 50", len(got))
	}
}

func TestIsScreenshotFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"image.png", true},
		{"image.jpg", true},
		{"image.jpeg", true},
		{"image.PNG", false},
		{"image.gif", false},
		{"document.txt", false},
		{".png", true},
	}
	for _, tt := range tests {
		if got := isScreenshotFile(tt.name); got != tt.want {
			t.Errorf("isScreenshotFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSaveAndList(t *testing.T) {
	tempDir := t.TempDir()
	m := NewManager(&Config{StorageDir: tempDir})

	testPNG, err := createTestPNG(100, 100)
	if err != nil {
		t.Fatalf("createTestPNG: %v", err)
	}

	path, err := m.Save(testPNG, "test_screenshot")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path == "" {
		t.Fatal("Save should return a path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if !bytes.Equal(data, testPNG) {
		t.Error("saved data should match original")
	}

	for i := 0; i < 2; i++ {
		if _, err := m.Save(testPNG, fmt.Sprintf("test_%d", i)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	paths, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("List() returned %d paths, want 3", len(paths))
	}
}

func TestSaveWithoutStorageDir(t *testing.T) {
	m := NewManager(&Config{})
	if _, err := m.Save([]byte("data"), "test"); err == nil {
		t.Error("Save should fail without a storage directory")
	}
}

func TestListIgnoresNonScreenshotFiles(t *testing.T) {
	tempDir := t.TempDir()
	m := NewManager(&Config{StorageDir: tempDir})
	os.WriteFile(filepath.Join(tempDir, "readme.txt"), []byte("x"), 0o644)

	paths, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("List() = %d, want 0", len(paths))
	}
}

func TestClearPreservesOtherFiles(t *testing.T) {
	tempDir := t.TempDir()
	m := NewManager(&Config{StorageDir: tempDir})
	testPNG, _ := createTestPNG(10, 10)
	m.Save(testPNG, "test")

	txtFile := filepath.Join(tempDir, "readme.txt")
	os.WriteFile(txtFile, []byte("x"), 0o644)

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(txtFile); os.IsNotExist(err) {
		t.Error("Clear should not remove non-screenshot files")
	}
	paths, _ := m.List()
	if len(paths) != 0 {
		t.Errorf("List() after Clear = %d, want 0", len(paths))
	}
}

func TestCleanupEnforcesMaxScreenshots(t *testing.T) {
	tempDir := t.TempDir()
	m := NewManager(&Config{StorageDir: tempDir, MaxScreenshots: 3})
	testPNG, _ := createTestPNG(10, 10)

	for i := 0; i < 5; i++ {
		if _, err := m.Save(testPNG, fmt.Sprintf("test_%d", i)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	paths, _ := m.List()
	if len(paths) > 3 {
		t.Errorf("List() = %d, want at most 3", len(paths))
	}
}

func TestEncodeForVLMPreservesSmallImages(t *testing.T) {
	testPNG, err := createTestPNG(400, 300)
	if err != nil {
		t.Fatalf("createTestPNG: %v", err)
	}
	encoded, w, h, err := EncodeForVLM(testPNG, PresetBalanced)
	if err != nil {
		t.Fatalf("EncodeForVLM() error = %v", err)
	}
	if w != 400 || h != 300 {
		t.Errorf("dimensions = %dx%d, want 400x300 (no upscale)", w, h)
	}
	if len(encoded) == 0 {
		t.Error("expected non-empty encoded output")
	}
}

func TestEncodeForVLMPreservesLargeImageDimensions(t *testing.T) {
	testPNG, err := createTestPNG(1600, 1200)
	if err != nil {
		t.Fatalf("createTestPNG: %v", err)
	}
	_, w, h, err := EncodeForVLM(testPNG, PresetBalanced)
	if err != nil {
		t.Fatalf("EncodeForVLM() error = %v", err)
	}
	if w != 1600 || h != 1200 {
		t.Errorf("dimensions = %dx%d, want 1600x1200 (no resize, regardless of preset)", w, h)
	}
}

func TestEncodeForVLMPresetsOnlyVaryQuality(t *testing.T) {
	testPNG, err := createTestPNG(1600, 1200)
	if err != nil {
		t.Fatalf("createTestPNG: %v", err)
	}
	for _, preset := range []Preset{PresetEfficient, PresetBalanced, PresetQuality, PresetMaximum} {
		_, w, h, err := EncodeForVLM(testPNG, preset)
		if err != nil {
			t.Fatalf("EncodeForVLM() error = %v", err)
		}
		if w != 1600 || h != 1200 {
			t.Errorf("preset %+v: dimensions = %dx%d, want 1600x1200", preset, w, h)
		}
	}
}

func TestPlaceholderMatchesRequestedDimensions(t *testing.T) {
	data, err := Placeholder(1080, 2400)
	if err != nil {
		t.Fatalf("Placeholder() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode placeholder: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 1080 || bounds.Dy() != 2400 {
		t.Errorf("placeholder size = %dx%d, want 1080x2400", bounds.Dx(), bounds.Dy())
	}
	r, g, b, a := img.At(5, 5).RGBA()
	if r != 0 || g != 0 || b != 0 || a == 0 {
		t.Errorf("placeholder pixel = (%d,%d,%d,%d), want opaque black", r, g, b, a)
	}
}
