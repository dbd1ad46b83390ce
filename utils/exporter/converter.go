package exporter

import (
	"fmt"
	"os"

	"github.com/HugoSmits86/nativewebp"
	"github.com/anthonynsimon/bild/imgio"
)

// ConvertPNGToWebP re-encodes a PNG or JPEG dump losslessly as WebP.
func ConvertPNGToWebP(pngFile string, webpFile string, deleteOriginal bool) error {
	img, err := imgio.Open(pngFile)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", pngFile, err)
	}
	out, err := os.Create(webpFile)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", webpFile, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(out)
	if err := nativewebp.Encode(out, img, nil); err != nil {
		return fmt.Errorf("failed to convert PNG to WebP: %w", err)
	}
	if deleteOriginal {
		if err := os.Remove(pngFile); err != nil {
			return fmt.Errorf("failed to delete original PNG file: %w", err)
		}
	}
	return nil
}
