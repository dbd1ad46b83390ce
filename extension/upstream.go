package extension

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/qmuntal/gltf"
)

// FlexString accepts both JSON strings and JSON numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := sonic.Unmarshal(data, &str); err != nil {
			return err
		}
		*f = FlexString(str)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("expected string or number, got %s", s)
	}
	*f = FlexString(s)
	return nil
}

// PreviewMeshMarker is the obfuscation marker stored at the document root.
type PreviewMeshMarker struct {
	Version   FlexString `json:"version"`
	Timestamp FlexString `json:"timestamp"`
}

func ParsePreviewMesh(raw []byte) (*PreviewMeshMarker, error) {
	var m PreviewMeshMarker
	if err := sonic.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", PixivPreviewMeshName, err)
	}
	return &m, nil
}

func rawJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case json.RawMessage:
		return t, nil
	case []byte:
		return t, nil
	}
	return sonic.ConfigStd.Marshal(v)
}

type textureSource struct {
	Source *int `json:"source"`
}

// repairTextureSource points every texture carrying extension name at the
// image named in that extension.
func repairTextureSource(name string) func(s *Session) error {
	return func(s *Session) error {
		repaired := 0
		for i, tex := range s.doc.Textures {
			if tex == nil {
				continue
			}
			v, ok := tex.Extensions[name]
			if !ok {
				continue
			}
			raw, err := rawJSON(v)
			if err != nil {
				return fmt.Errorf("texture %d %s: %w", i, name, err)
			}
			var ts textureSource
			if err := sonic.Unmarshal(raw, &ts); err != nil {
				return fmt.Errorf("texture %d %s: %w", i, name, err)
			}
			if ts.Source == nil {
				continue
			}
			if *ts.Source < 0 || *ts.Source >= len(s.doc.Images) {
				return fmt.Errorf("texture %d %s: image %d out of range", i, name, *ts.Source)
			}
			source := *ts.Source
			tex.Source = &source
			repaired++
		}
		if repaired > 0 {
			logger.Debugf("Repointed %d textures using %s", repaired, name)
		}
		return nil
	}
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func entityExtensions(doc *gltf.Document, scope Scope) []*gltf.Extensions {
	var out []*gltf.Extensions
	switch scope {
	case ScopeRoot:
		out = append(out, &doc.Extensions)
	case ScopeMaterial:
		for _, m := range doc.Materials {
			if m == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, &m.Extensions)
		}
	case ScopeNode:
		for _, n := range doc.Nodes {
			if n == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, &n.Extensions)
		}
	case ScopeTexture:
		for _, t := range doc.Textures {
			if t == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, &t.Extensions)
		}
	}
	return out
}

// PreviewMarker reads the obfuscation marker straight from the document root.
func PreviewMarker(doc *gltf.Document) (*PreviewMeshMarker, bool, error) {
	v, ok := doc.Extensions[PixivPreviewMeshName]
	if !ok {
		return nil, false, nil
	}
	raw, err := rawJSON(v)
	if err != nil {
		return nil, true, err
	}
	m, err := ParsePreviewMesh(raw)
	return m, true, err
}
