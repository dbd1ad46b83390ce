package extension

import "github.com/qmuntal/gltf"

type TexturePoolEntry struct {
	Name    string
	Source  int
	Sampler *int
}

// TexturePoolSnapshot remembers the texture array as it was before pruning so
// that vendor extensions indexing into it still resolve afterwards.
type TexturePoolSnapshot struct {
	entries []TexturePoolEntry
}

// CaptureTexturePool records every texture that names an image source.
func CaptureTexturePool(doc *gltf.Document) *TexturePoolSnapshot {
	p := &TexturePoolSnapshot{}
	for _, tex := range doc.Textures {
		if tex == nil || tex.Source == nil {
			continue
		}
		e := TexturePoolEntry{Name: tex.Name, Source: *tex.Source}
		if tex.Sampler != nil {
			sampler := *tex.Sampler
			e.Sampler = &sampler
		}
		p.entries = append(p.entries, e)
	}
	return p
}

func (p *TexturePoolSnapshot) Entries() []TexturePoolEntry {
	return p.entries
}

func (e TexturePoolEntry) texture() *gltf.Texture {
	source := e.Source
	tex := &gltf.Texture{Name: e.Name, Source: &source}
	if e.Sampler != nil {
		sampler := *e.Sampler
		tex.Sampler = &sampler
	}
	return tex
}

// Reapply puts the captured textures back. An entry whose source is already
// referenced overwrites that slot (the last slot wins when several share a
// source); any other entry is appended. The snapshot is emptied afterwards.
func (p *TexturePoolSnapshot) Reapply(doc *gltf.Document) {
	sourceToIndex := make(map[int]int, len(doc.Textures))
	for i, tex := range doc.Textures {
		if tex != nil && tex.Source != nil {
			sourceToIndex[*tex.Source] = i
		}
	}
	for _, e := range p.entries {
		if i, ok := sourceToIndex[e.Source]; ok {
			doc.Textures[i] = e.texture()
			continue
		}
		doc.Textures = append(doc.Textures, e.texture())
		sourceToIndex[e.Source] = len(doc.Textures) - 1
	}
	p.entries = nil
}
