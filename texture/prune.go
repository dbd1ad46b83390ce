package texture

import (
	"fmt"
	"strings"

	"haruki-vroid-deobfuscator/utils/orderedjson"

	"github.com/bytedance/sonic"
	"github.com/qmuntal/gltf"
)

type textureKey struct {
	source  int
	sampler int
}

func keyOf(tex *gltf.Texture) textureKey {
	k := textureKey{source: -1, sampler: -1}
	if tex.Source != nil {
		k.source = *tex.Source
	}
	if tex.Sampler != nil {
		k.sampler = *tex.Sampler
	}
	return k
}

func isTextureSlot(key string) bool {
	return strings.HasSuffix(key, "Texture")
}

// Prune keeps only the textures reachable from materials, merges textures that
// share an image and sampler, and renumbers material references in
// first-reference order. It returns the texture count before and after.
func Prune(doc *gltf.Document) (int, int, error) {
	before := len(doc.Textures)
	var kept []*gltf.Texture
	remap := make(map[int]int)
	byKey := make(map[textureKey]int)

	for mi, mat := range doc.Materials {
		if mat == nil {
			continue
		}
		raw, err := sonic.ConfigStd.Marshal(mat)
		if err != nil {
			return 0, 0, fmt.Errorf("material %d: %w", mi, err)
		}
		tree, err := orderedjson.Parse(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("material %d: %w", mi, err)
		}
		paths := orderedjson.FindTextureInfos(tree, isTextureSlot, true)
		if len(paths) == 0 {
			continue
		}
		for _, path := range paths {
			v, _ := orderedjson.Get(tree, path)
			old, _ := orderedjson.Index(v)
			if old >= len(doc.Textures) || doc.Textures[old] == nil {
				return 0, 0, fmt.Errorf("material %d references missing texture %d", mi, old)
			}
			idx, ok := remap[old]
			if !ok {
				key := keyOf(doc.Textures[old])
				if idx, ok = byKey[key]; !ok {
					idx = len(kept)
					kept = append(kept, doc.Textures[old])
					byKey[key] = idx
				}
				remap[old] = idx
			}
			if tree, err = orderedjson.Set(tree, path, float64(idx)); err != nil {
				return 0, 0, fmt.Errorf("material %d: %w", mi, err)
			}
		}
		out, err := orderedjson.Marshal(tree)
		if err != nil {
			return 0, 0, fmt.Errorf("material %d: %w", mi, err)
		}
		updated := new(gltf.Material)
		if err := sonic.ConfigStd.Unmarshal(out, updated); err != nil {
			return 0, 0, fmt.Errorf("material %d: %w", mi, err)
		}
		doc.Materials[mi] = updated
	}
	doc.Textures = kept
	return before, len(kept), nil
}
