package utils

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	color_extractor "github.com/marekm4/color-extractor"
	_ "golang.org/x/image/webp"
)

// DominantColours decodes an image on disk and returns its most prominent
// colours as hex strings, most dominant first. JPEG, PNG, GIF and WebP are
// understood; anything else is an error.
func DominantColours(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return []string{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return []string{}, fmt.Errorf("decode %s: %w", path, err)
	}

	var domColours []string
	for _, c := range color_extractor.ExtractColors(img) {
		domColours = append(domColours, colorToHexString(c))
	}
	return domColours, nil
}

func colorToHexString(c color.Color) string {
	r, g, b, a := c.RGBA()
	rgba := color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
	return fmt.Sprintf("#%.2x%.2x%.2x", rgba.R, rgba.G, rgba.B)
}
