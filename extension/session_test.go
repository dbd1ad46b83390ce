package extension

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/qmuntal/gltf"
)

func intPtr(v int) *int { return &v }

func rawOf(t *testing.T, v any) string {
	t.Helper()
	raw, ok := v.(json.RawMessage)
	if !ok {
		t.Fatalf("extension value is %T, want json.RawMessage", v)
	}
	return string(raw)
}

func newModelDocument() *gltf.Document {
	return &gltf.Document{
		ExtensionsUsed: []string{VRMExtensionName, PixivPreviewMeshName, MToonExtensionName},
		Extensions: gltf.Extensions{
			VRMExtensionName:     json.RawMessage(`{"materialProperties":[{"name":"m","textureProperties":{"_MainTex":3,"_ShadeTexture":2}}],"meta":{"texture":0}}`),
			PixivPreviewMeshName: json.RawMessage(`{"version":"4.0","timestamp":"1700000000"}`),
		},
		Images: []*gltf.Image{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		Textures: []*gltf.Texture{
			{Name: "t0", Source: intPtr(0)},
			{Name: "t1", Source: intPtr(1)},
			{Name: "t2", Source: intPtr(2)},
			{Name: "t3", Source: intPtr(1), Sampler: intPtr(0)},
		},
		Materials: []*gltf.Material{
			{Name: "m", Extensions: gltf.Extensions{
				MToonExtensionName: json.RawMessage(`{"specVersion":"1.0","shadeMultiplyTexture":{"index":2},"shadeColorFactor":[1,1,1]}`),
			}},
		},
	}
}

func TestSessionRemapsReferencesAfterReordering(t *testing.T) {
	doc := newModelDocument()
	s := NewSession(doc, DefaultDescriptors())
	if err := s.Preread(); err != nil {
		t.Fatalf("Preread() failed: %v", err)
	}
	if err := s.Read(); err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if _, ok := doc.Extensions[VRMExtensionName]; ok {
		t.Fatal("VRM payload still attached after Read()")
	}
	if _, ok := doc.Materials[0].Extensions[MToonExtensionName]; ok {
		t.Fatal("MToon payload still attached after Read()")
	}
	if inst, _ := s.Instance(VRMExtensionName); inst.State() != StateCaptured {
		t.Fatalf("VRM state = %v, want captured", inst.State())
	}

	// Rebuild the texture array in a different order, as pruning does.
	doc.Textures = []*gltf.Texture{{Name: "p0", Source: intPtr(2)}, {Name: "p1", Source: intPtr(1)}}
	s.Prewrite()

	wantNames := []string{"t2", "t3", "t0"}
	if len(doc.Textures) != len(wantNames) {
		t.Fatalf("texture count = %d, want %d", len(doc.Textures), len(wantNames))
	}
	for i, name := range wantNames {
		if doc.Textures[i].Name != name {
			t.Errorf("texture %d = %q, want %q", i, doc.Textures[i].Name, name)
		}
	}

	if err := s.Write(); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	wantVRM := `{"materialProperties":[{"name":"m","textureProperties":{"_MainTex":1,"_ShadeTexture":0}}],"meta":{"texture":2}}`
	if got := rawOf(t, doc.Extensions[VRMExtensionName]); got != wantVRM {
		t.Errorf("VRM = %s, want %s", got, wantVRM)
	}
	wantMToon := `{"specVersion":"1.0","shadeMultiplyTexture":{"index":0},"shadeColorFactor":[1,1,1]}`
	if got := rawOf(t, doc.Materials[0].Extensions[MToonExtensionName]); got != wantMToon {
		t.Errorf("MToon = %s, want %s", got, wantMToon)
	}
	if inst, _ := s.Instance(VRMExtensionName); inst.State() != StateReconciled {
		t.Errorf("VRM state = %v, want reconciled", inst.State())
	}
}

// arrangements returns every ordering of every subset of textures.
func arrangements(textures []*gltf.Texture) [][]*gltf.Texture {
	out := [][]*gltf.Texture{nil}
	for i, tex := range textures {
		rest := append(append([]*gltf.Texture{}, textures[:i]...), textures[i+1:]...)
		for _, tail := range arrangements(rest) {
			out = append(out, append([]*gltf.Texture{tex}, tail...))
		}
	}
	return out
}

func cloneTextures(textures []*gltf.Texture) []*gltf.Texture {
	out := make([]*gltf.Texture, len(textures))
	for i, tex := range textures {
		c := *tex
		out[i] = &c
	}
	return out
}

func sourceAt(t *testing.T, doc *gltf.Document, v any) int {
	t.Helper()
	idx, ok := v.(float64)
	if !ok || int(idx) < 0 || int(idx) >= len(doc.Textures) || doc.Textures[int(idx)].Source == nil {
		t.Fatalf("reference %v does not resolve to a texture", v)
	}
	return *doc.Textures[int(idx)].Source
}

func TestSessionReferencesSurviveEveryPrunedArrangement(t *testing.T) {
	originals := newModelDocument().Textures
	for _, arrangement := range arrangements(originals) {
		for _, duplicateFirst := range []bool{false, true} {
			doc := newModelDocument()
			s := NewSession(doc, DefaultDescriptors())
			if err := s.Preread(); err != nil {
				t.Fatal(err)
			}
			if err := s.Read(); err != nil {
				t.Fatal(err)
			}
			pruned := cloneTextures(arrangement)
			if duplicateFirst && len(pruned) > 0 {
				pruned = append(pruned, cloneTextures(pruned[:1])...)
			}
			doc.Textures = pruned
			s.Prewrite()
			if err := s.Write(); err != nil {
				t.Fatalf("Write() failed for %d textures: %v", len(pruned), err)
			}

			var vrm struct {
				MaterialProperties []struct {
					TextureProperties map[string]any `json:"textureProperties"`
				} `json:"materialProperties"`
				Meta struct {
					Texture any `json:"texture"`
				} `json:"meta"`
			}
			if err := json.Unmarshal([]byte(rawOf(t, doc.Extensions[VRMExtensionName])), &vrm); err != nil {
				t.Fatal(err)
			}
			var mtoon struct {
				ShadeMultiplyTexture struct {
					Index any `json:"index"`
				} `json:"shadeMultiplyTexture"`
			}
			if err := json.Unmarshal([]byte(rawOf(t, doc.Materials[0].Extensions[MToonExtensionName])), &mtoon); err != nil {
				t.Fatal(err)
			}

			props := vrm.MaterialProperties[0].TextureProperties
			for _, c := range []struct {
				name string
				ref  any
				want int
			}{
				{"_MainTex", props["_MainTex"], 1},
				{"_ShadeTexture", props["_ShadeTexture"], 2},
				{"meta.texture", vrm.Meta.Texture, 0},
				{"shadeMultiplyTexture", mtoon.ShadeMultiplyTexture.Index, 2},
			} {
				if got := sourceAt(t, doc, c.ref); got != c.want {
					t.Errorf("%s with %d pruned textures resolves to source %d, want %d", c.name, len(pruned), got, c.want)
				}
			}
		}
	}
}

func TestUpstreamOnlyNeverWritten(t *testing.T) {
	doc := newModelDocument()
	s := NewSession(doc, DefaultDescriptors())
	if err := s.Read(); err != nil {
		t.Fatal(err)
	}
	raw, ok := s.Upstream(PixivPreviewMeshName)
	if !ok {
		t.Fatal("preview mesh marker not captured")
	}
	marker, err := ParsePreviewMesh(raw)
	if err != nil {
		t.Fatal(err)
	}
	if marker.Version != "4.0" || marker.Timestamp != "1700000000" {
		t.Errorf("marker = %+v", marker)
	}

	s.StripUpstream()
	for _, name := range doc.ExtensionsUsed {
		if name == PixivPreviewMeshName {
			t.Error("preview mesh still declared in extensionsUsed")
		}
	}
	if err := s.Write(); err != nil {
		t.Fatal(err)
	}
	if _, ok := doc.Extensions[PixivPreviewMeshName]; ok {
		t.Error("upstream-only extension re-emitted")
	}

	err = s.WriteExtension(PixivPreviewMeshName)
	var we *WriteError
	if !errors.As(err, &we) || !errors.Is(err, ErrNotWritable) || we.Name != PixivPreviewMeshName {
		t.Errorf("WriteExtension() error = %v, want WriteError", err)
	}
}

func TestParsePreviewMeshNumbers(t *testing.T) {
	marker, err := ParsePreviewMesh([]byte(`{"version":5.0,"timestamp":1700000000}`))
	if err != nil {
		t.Fatal(err)
	}
	if marker.Timestamp != "1700000000" {
		t.Errorf("timestamp = %q", marker.Timestamp)
	}
}

func TestBasisSourceRepair(t *testing.T) {
	doc := &gltf.Document{
		ExtensionsUsed:     []string{KHRTextureBasisuName},
		ExtensionsRequired: []string{KHRTextureBasisuName},
		Images:             []*gltf.Image{{MimeType: "image/png"}, {MimeType: "image/ktx2"}},
		Textures: []*gltf.Texture{{Extensions: gltf.Extensions{
			KHRTextureBasisuName: json.RawMessage(`{"source":1}`),
		}}},
	}
	s := NewSession(doc, DefaultDescriptors())
	if err := s.Preread(); err != nil {
		t.Fatal(err)
	}
	if err := s.Read(); err != nil {
		t.Fatal(err)
	}
	s.StripUpstream()
	if doc.Textures[0].Source == nil || *doc.Textures[0].Source != 1 {
		t.Fatalf("texture source = %v, want 1", doc.Textures[0].Source)
	}
	if _, ok := doc.Textures[0].Extensions[KHRTextureBasisuName]; ok {
		t.Error("basis extension still attached")
	}
	if len(doc.ExtensionsUsed) != 0 || len(doc.ExtensionsRequired) != 0 {
		t.Errorf("declarations = %v / %v", doc.ExtensionsUsed, doc.ExtensionsRequired)
	}
}

func TestDanglingReferenceOnRead(t *testing.T) {
	doc := newModelDocument()
	doc.Extensions[VRMExtensionName] = json.RawMessage(`{"materialProperties":[{"textureProperties":{"_MainTex":7}}]}`)
	s := NewSession(doc, DefaultDescriptors())
	err := s.Read()
	if !errors.Is(err, ErrDanglingTextureRef) {
		t.Errorf("Read() error = %v, want ErrDanglingTextureRef", err)
	}
}

func TestDanglingReferenceOnWrite(t *testing.T) {
	doc := newModelDocument()
	doc.Materials[0].Extensions[MToonExtensionName] = json.RawMessage(`{"shadeMultiplyTexture":{"index":0}}`)
	// No pool for this descriptor set, so the source cannot come back.
	descriptors := []Descriptor{{Name: MToonExtensionName, Scope: ScopeMaterial, TextureRefs: textureInfoRefs, Writable: true}}
	s := NewSession(doc, descriptors)
	if err := s.Read(); err != nil {
		t.Fatal(err)
	}
	doc.Textures = doc.Textures[1:]
	if err := s.Write(); !errors.Is(err, ErrDanglingTextureRef) {
		t.Errorf("Write() error = %v, want ErrDanglingTextureRef", err)
	}
}

func TestPassThroughVerbatim(t *testing.T) {
	raw := `{"specVersion":"1.0","springs":[{"joints":[{"node":3,"hitRadius":0.02}]}]}`
	doc := &gltf.Document{
		ExtensionsUsed: []string{"VRMC_springBone"},
		Extensions:     gltf.Extensions{"VRMC_springBone": json.RawMessage(raw)},
	}
	s := NewSession(doc, DefaultDescriptors())
	if err := s.Read(); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(); err != nil {
		t.Fatal(err)
	}
	if got := rawOf(t, doc.Extensions["VRMC_springBone"]); got != raw {
		t.Errorf("springBone = %s, want %s", got, raw)
	}
	if err := s.WriteExtension("VRMC_springBone"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second write error = %v, want ErrInvalidState", err)
	}
}

func TestTexturePoolAppendsMissingSources(t *testing.T) {
	doc := &gltf.Document{Textures: []*gltf.Texture{
		{Name: "a", Source: intPtr(0)},
		{Name: "b", Source: intPtr(1), Sampler: intPtr(2)},
	}}
	pool := CaptureTexturePool(doc)
	doc.Textures = []*gltf.Texture{{Name: "x", Source: intPtr(1)}}
	pool.Reapply(doc)
	if len(doc.Textures) != 2 {
		t.Fatalf("texture count = %d, want 2", len(doc.Textures))
	}
	if doc.Textures[0].Name != "b" || *doc.Textures[0].Sampler != 2 {
		t.Errorf("slot 0 = %+v, want b with sampler 2", doc.Textures[0])
	}
	if doc.Textures[1].Name != "a" || *doc.Textures[1].Source != 0 {
		t.Errorf("slot 1 = %+v, want a", doc.Textures[1])
	}
	if len(pool.Entries()) != 0 {
		t.Error("pool not cleared after Reapply()")
	}
}

func TestSnapshotsKeyedByOwner(t *testing.T) {
	doc := newModelDocument()
	s := NewSession(doc, DefaultDescriptors())
	if err := s.Read(); err != nil {
		t.Fatal(err)
	}
	snaps := s.Snapshots()
	want := `{"0":{"specVersion":"1.0","shadeMultiplyTexture":{"index":2},"shadeColorFactor":[1,1,1]}}`
	if got := string(snaps[MToonExtensionName]); got != want {
		t.Errorf("MToon snapshot = %s, want %s", got, want)
	}
}
