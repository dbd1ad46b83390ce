// Package exporter writes debug artefacts of a deobfuscation run.
package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"haruki-vroid-deobfuscator/texture"
	"haruki-vroid-deobfuscator/utils"
	harukiLogger "haruki-vroid-deobfuscator/utils/logger"
)

var logger = harukiLogger.NewLogger("HarukiVRoidExporter", "INFO", nil)

// PrepareDebugDir creates dir and deletes the regular files directly inside
// it. Subdirectories are left alone.
func PrepareDebugDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create debug dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list debug dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clean debug dir: %w", err)
		}
	}
	return nil
}

func textureFileName(res *texture.Result) string {
	name := res.Name
	if name == "" {
		name = fmt.Sprintf("image%d", res.Image)
	}
	return fmt.Sprintf("%s.%s.%s", utils.MakeSafeFilename(name),
		texture.Extension(res.SourceMimeType), texture.Extension(res.MimeType))
}

// DumpTextures writes each image payload as {name}.{source kind}.{ext}. PNG
// and JPEG dumps are converted to WebP when convertToWebP is set.
func DumpTextures(dir string, images []*texture.Result, convertToWebP bool) ([]string, error) {
	var written []string
	for _, res := range images {
		if res == nil {
			continue
		}
		path := filepath.Join(dir, textureFileName(res))
		if err := os.WriteFile(path, res.Data, 0o644); err != nil {
			return written, fmt.Errorf("failed to dump texture %d: %w", res.Image, err)
		}
		if convertToWebP && (res.MimeType == texture.MimePNG || res.MimeType == texture.MimeJPEG) {
			webpPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".webp"
			if err := ConvertPNGToWebP(path, webpPath, true); err != nil {
				logger.Warnf("Keeping %s: %v", path, err)
			} else {
				path = webpPath
			}
		}
		written = append(written, path)
	}
	logger.Infof("Dumped %d textures to %s", len(written), dir)
	return written, nil
}

// DumpJSON writes data to dir/{name}.json.
func DumpJSON(dir string, name string, data []byte) (string, error) {
	path := filepath.Join(dir, utils.MakeSafeFilename(name)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to dump %s: %w", name, err)
	}
	return path, nil
}

// DumpExtensions writes every extension snapshot as {lowercased name}.json.
func DumpExtensions(dir string, snapshots map[string][]byte) ([]string, error) {
	var written []string
	for name, data := range snapshots {
		path, err := DumpJSON(dir, strings.ToLower(name), data)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
