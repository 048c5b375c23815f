package debug

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

// Screenshots writes framebuffer captures as PNG files.
type Screenshots struct {
	outputDir string
	prefix    string
	now       func() time.Time
}

// NewScreenshots creates a capture writer. An empty dir writes to the
// working directory.
func NewScreenshots(outputDir, prefix string) *Screenshots {
	return &Screenshots{
		outputDir: outputDir,
		prefix:    prefix,
		now:       time.Now,
	}
}

// Filename returns the path for a capture of the given stream frame.
func (s *Screenshots) Filename(frame int) string {
	name := fmt.Sprintf("%s_%s_f%05d.png", s.prefix, s.now().Format("2006-01-02_15-04-05"), frame)
	if s.outputDir != "" {
		name = filepath.Join(s.outputDir, name)
	}
	return name
}

// Save writes RGBA pixels read from OpenGL, flipping them vertically since
// OpenGL has its origin at the bottom left. Returns the file written.
func (s *Screenshots) Save(pixels []byte, width, height, frame int) (string, error) {
	if len(pixels) != width*height*4 {
		return "", fmt.Errorf("pixel data size mismatch: expected %d, got %d", width*height*4, len(pixels))
	}

	if s.outputDir != "" {
		if err := os.MkdirAll(s.outputDir, 0755); err != nil {
			return "", fmt.Errorf("creating output dir: %w", err)
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rowSize := width * 4
	for y := 0; y < height; y++ {
		src := (height - 1 - y) * rowSize
		copy(img.Pix[y*img.Stride:y*img.Stride+rowSize], pixels[src:src+rowSize])
	}

	filename := s.Filename(frame)
	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("encoding PNG: %w", err)
	}
	return filename, nil
}
