package exporter

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"haruki-vroid-deobfuscator/texture"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	data, err := texture.EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestPrepareDebugDirCleansOnlyFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	keep := filepath.Join(dir, "other-model")
	if err := os.MkdirAll(keep, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{filepath.Join(dir, "stale.json"), filepath.Join(keep, "vrm.json")} {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := PrepareDebugDir(dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "stale.json")); !os.IsNotExist(err) {
		t.Error("stale dump survived")
	}
	if _, err := os.Stat(filepath.Join(keep, "vrm.json")); err != nil {
		t.Errorf("subdirectory content removed: %v", err)
	}
}

func TestPrepareDebugDirCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := PrepareDebugDir(dir); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("debug dir not created: %v", err)
	}
}

func TestDumpTextures(t *testing.T) {
	dir := t.TempDir()
	data := pngBytes(t)
	images := []*texture.Result{
		{Image: 0, Name: "face/skin", SourceMimeType: texture.MimeKTX2, MimeType: texture.MimePNG, Data: data},
		nil,
		{Image: 2, SourceMimeType: texture.MimeBasis, MimeType: texture.MimeBasis, Data: []byte("raw")},
	}
	written, err := DumpTextures(dir, images, false)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "face_x2f_skin.ktx2.png"),
		filepath.Join(dir, "image2.basis.basis"),
	}
	if len(written) != len(want) {
		t.Fatalf("written = %v", written)
	}
	for i := range want {
		if written[i] != want[i] {
			t.Errorf("written[%d] = %q, want %q", i, written[i], want[i])
		}
	}
	got, _ := os.ReadFile(want[0])
	if !bytes.Equal(got, data) {
		t.Error("dumped payload differs")
	}
}

func TestDumpTexturesConvertsToWebP(t *testing.T) {
	dir := t.TempDir()
	images := []*texture.Result{{Image: 0, Name: "tex", SourceMimeType: texture.MimePNG, MimeType: texture.MimePNG, Data: pngBytes(t)}}
	written, err := DumpTextures(dir, images, true)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "tex.png.webp")
	if len(written) != 1 || written[0] != want {
		t.Fatalf("written = %v, want %s", written, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || texture.Sniff(data) != texture.KindRIFF {
		t.Errorf("expected a RIFF payload, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tex.png.png")); !os.IsNotExist(err) {
		t.Error("png dump should be replaced by the webp file")
	}
}

func TestDumpExtensions(t *testing.T) {
	dir := t.TempDir()
	written, err := DumpExtensions(dir, map[string][]byte{
		"VRM":                  []byte(`{"meta":{}}`),
		"VRMC_materials_mtoon": []byte(`{"0":{}}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(written)
	want := []string{filepath.Join(dir, "vrm.json"), filepath.Join(dir, "vrmc_materials_mtoon.json")}
	for i := range want {
		if written[i] != want[i] {
			t.Errorf("written[%d] = %q, want %q", i, written[i], want[i])
		}
	}
}
