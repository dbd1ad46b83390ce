package job

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"haruki-vroid-deobfuscator/config"
	"haruki-vroid-deobfuscator/deobfuscator"
	"haruki-vroid-deobfuscator/extension"
	"haruki-vroid-deobfuscator/texture"

	"github.com/klauspost/compress/zstd"
	"github.com/qmuntal/gltf"
)

var pngStub = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

func containerBytes(t *testing.T, timestamp string) []byte {
	t.Helper()
	positions := [][3]float32{{1, 2, 3}, {1, 5, 6}, {0.5, -1, 2}}
	data := make([]byte, len(positions)*12)
	for i, p := range positions {
		for c := 0; c < 3; c++ {
			binary.LittleEndian.PutUint32(data[i*12+c*4:], math.Float32bits(p[c]))
		}
	}
	imageOffset := len(data)
	data = append(data, pngStub...)
	zero, one := 0, 1
	doc := &gltf.Document{
		Asset:   gltf.Asset{Version: "2.0"},
		Buffers: []*gltf.Buffer{{Data: data, ByteLength: len(data)}},
		BufferViews: []*gltf.BufferView{
			{Buffer: 0, ByteLength: imageOffset},
			{Buffer: 0, ByteOffset: imageOffset, ByteLength: len(pngStub)},
		},
		Accessors: []*gltf.Accessor{{
			BufferView:    &zero,
			ComponentType: gltf.ComponentFloat,
			Type:          gltf.AccessorVec3,
			Count:         len(positions),
			Min:           []float64{0.5, -1, 2},
			Max:           []float64{1, 5, 6},
		}},
		Meshes:         []*gltf.Mesh{{Name: "body", Primitives: []*gltf.Primitive{{Attributes: map[string]int{"POSITION": 0}}}}},
		Images:         []*gltf.Image{{Name: "face", MimeType: texture.MimeBasis, BufferView: &one}},
		Textures:       []*gltf.Texture{{Source: &zero}},
		Materials:      []*gltf.Material{{Name: "skin", PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorTexture: &gltf.TextureInfo{Index: 0}}}},
		ExtensionsUsed: []string{extension.VRMExtensionName, extension.PixivPreviewMeshName},
		Extensions: gltf.Extensions{
			extension.VRMExtensionName:     json.RawMessage(`{"materialProperties":[{"name":"skin","textureProperties":{"_MainTex":0}}]}`),
			extension.PixivPreviewMeshName: json.RawMessage(`{"version":"4.0","timestamp":"` + timestamp + `"}`),
		},
	}
	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Output.OutputDir = filepath.Join(root, "out")
	cfg.Output.CacheDir = filepath.Join(root, "cache")
	cfg.Output.DebugDir = filepath.Join(root, "debug")
	cfg.Output.MotionDir = filepath.Join(root, "motions")
	return cfg
}

func TestProcessWritesDeobfuscatedModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.DumpTextures = true
	j := NewHarukiVRoidDeobfuscateJob(context.Background(), cfg)
	defer j.Close()

	result, err := j.Process("5", "https://example.com/x", containerBytes(t, "1764841611"), "Avatar")
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}
	if want := filepath.Join(cfg.Output.OutputDir, "[5].Avatar.deobf.vrm"); result.OutputPath != want {
		t.Errorf("OutputPath = %q, want %q", result.OutputPath, want)
	}
	if result.Report.Context.Seed != 29204 {
		t.Errorf("seed = %d", result.Report.Context.Seed)
	}

	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(result.Data)).Decode(doc); err != nil {
		t.Fatalf("output does not decode: %v", err)
	}
	if _, ok := doc.Extensions[extension.PixivPreviewMeshName]; ok {
		t.Error("marker extension written to output")
	}
	if _, ok := doc.Extensions[extension.VRMExtensionName]; !ok {
		t.Error("VRM extension missing from output")
	}
	if doc.Images[0].MimeType != texture.MimePNG {
		t.Errorf("image mime = %s", doc.Images[0].MimeType)
	}

	for _, name := range []string{"face.basis.png", "vrm.json"} {
		if _, err := os.Stat(filepath.Join(cfg.Output.DebugDir, "5", name)); err != nil {
			t.Errorf("debug file %s missing: %v", name, err)
		}
	}
}

func TestProcessFailureWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	j := NewHarukiVRoidDeobfuscateJob(context.Background(), cfg)
	defer j.Close()

	_, err := j.Process("5", "https://example.com/x", containerBytes(t, "42"), "")
	if !errors.Is(err, deobfuscator.ErrSeedNotFound) {
		t.Fatalf("Process() error = %v, want ErrSeedNotFound", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Output.OutputDir, "[5].deobf.vrm")); !os.IsNotExist(err) {
		t.Error("output written for a failed run")
	}
}

func encryptContainer(t *testing.T, container []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	plain := make([]byte, 4)
	binary.LittleEndian.PutUint32(plain, uint32(len(container)))
	plain = enc.EncodeAll(container, plain)
	_ = enc.Close()
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	plain = append(plain, bytes.Repeat([]byte{byte(pad)}, pad)...)

	header := bytes.Repeat([]byte{0x5a}, 48)
	block, err := aes.NewCipher(header[16:48])
	if err != nil {
		t.Fatal(err)
	}
	body := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, header[:16]).CryptBlocks(body, plain)
	return append(header, body...)
}

func TestRunRetrievesAndDeobfuscates(t *testing.T) {
	encrypted := encryptContainer(t, containerBytes(t, "1764841611"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/x":
			_, _ = w.Write(encrypted)
		case "/api/character_models/5/optimized_preview":
			http.Redirect(w, r, "/x", http.StatusFound)
		case "/api/character_models/5":
			_, _ = w.Write([]byte(`{"data":{"personality":{"waiting_motion":{"url":"` +
				"http://" + r.Host + `/motions/shy/waiting-AB.vrma"}}}}`))
		case "/motions/shy/waiting-AB.vrma":
			_, _ = w.Write([]byte("vrma"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.Hub.APIBase = server.URL + "/api"
	j := NewHarukiVRoidDeobfuscateJob(context.Background(), cfg)
	defer j.Close()

	result, err := j.Run("5", Options{UseCache: true, DownloadMotions: true})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if result.Report.Context.Seed != 29204 {
		t.Errorf("seed = %d, want 29204", result.Report.Context.Seed)
	}
	if result.Motions != 1 {
		t.Errorf("Motions = %d, want 1", result.Motions)
	}
	if _, err := os.Stat(filepath.Join(cfg.Output.MotionDir, "5", "shy-waiting.vrma")); err != nil {
		t.Errorf("motion not saved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Output.CacheDir, "5.glb")); err != nil {
		t.Errorf("container not cached: %v", err)
	}
}
