package extension

import (
	"haruki-vroid-deobfuscator/utils/orderedjson"

	"github.com/dlclark/regexp2"
)

const (
	VRMExtensionName            = "VRM"
	VRMCExtensionName           = "VRMC_vrm"
	MToonExtensionName          = "VRMC_materials_mtoon"
	EmissiveExtensionName       = "VRMC_materials_hdr_emissiveMultiplier"
	NodeConstraintExtensionName = "VRMC_node_constraint"
	PixivPreviewMeshName        = "PIXIV_vroid_hub_preview_mesh"
	PixivTextureBasisName       = "PIXIV_texture_basis"
	KHRTextureBasisuName        = "KHR_texture_basisu"
)

// Scope says where an extension lives in the document.
type Scope int

const (
	ScopeRoot Scope = iota
	ScopeMaterial
	ScopeNode
	ScopeTexture
)

func (s Scope) String() string {
	switch s {
	case ScopeRoot:
		return "root"
	case ScopeMaterial:
		return "material"
	case ScopeNode:
		return "node"
	case ScopeTexture:
		return "texture"
	default:
		return "unknown"
	}
}

// RefLocator lists the texture-index fields inside a captured sub-tree.
type RefLocator func(tree any) []orderedjson.Path

// Descriptor drives the generic preservation routine for one extension name.
type Descriptor struct {
	Name  string
	Scope Scope
	// TextureRefs is nil for extensions without texture indices.
	TextureRefs RefLocator
	// TexturePool marks extensions that need the texture array restored after
	// pruning.
	TexturePool bool
	// Writable is false for upstream-only signals that must never be re-emitted.
	Writable bool
	// Preread repairs the document before anything else reads the texture array.
	Preread func(s *Session) error
}

func (d Descriptor) CapturesTextureRefs() bool {
	return d.TextureRefs != nil
}

var textureFieldPattern = regexp2.MustCompile(`^.*Texture$`, regexp2.None)

func isTextureField(key string) bool {
	ok, err := textureFieldPattern.MatchString(key)
	return err == nil && ok
}

func textureInfoRefs(tree any) []orderedjson.Path {
	return orderedjson.FindTextureInfos(tree, isTextureField, false)
}

func vrm0Refs(tree any) []orderedjson.Path {
	var out []orderedjson.Path
	thumbnail := orderedjson.Path{"meta", "texture"}
	if v, ok := orderedjson.Get(tree, thumbnail); ok {
		if _, ok := orderedjson.Index(v); ok {
			out = append(out, thumbnail)
		}
	}
	props, _ := orderedjson.Get(tree, orderedjson.Path{"materialProperties"})
	materials, _ := props.([]any)
	for i, mat := range materials {
		tp, ok := orderedjson.Get(mat, orderedjson.Path{"textureProperties"})
		if !ok {
			continue
		}
		om, ok := orderedjson.AsMap(tp)
		if !ok {
			continue
		}
		for _, k := range om.Keys() {
			v, _ := om.Get(k)
			if _, ok := orderedjson.Index(v); ok {
				out = append(out, orderedjson.Path{"materialProperties", i, "textureProperties", k})
			}
		}
	}
	return out
}

func passThrough(name string) Descriptor {
	return Descriptor{Name: name, Scope: ScopeRoot, Writable: true}
}

// DefaultDescriptors is the table of every extension the pipeline knows about.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{Name: PixivTextureBasisName, Scope: ScopeTexture, Preread: repairTextureSource(PixivTextureBasisName)},
		{Name: KHRTextureBasisuName, Scope: ScopeTexture, Preread: repairTextureSource(KHRTextureBasisuName)},
		{Name: PixivPreviewMeshName, Scope: ScopeRoot},
		{Name: VRMExtensionName, Scope: ScopeRoot, TextureRefs: vrm0Refs, TexturePool: true, Writable: true},
		{Name: VRMCExtensionName, Scope: ScopeRoot, TexturePool: true, Writable: true},
		{Name: MToonExtensionName, Scope: ScopeMaterial, TextureRefs: textureInfoRefs, TexturePool: true, Writable: true},
		{Name: EmissiveExtensionName, Scope: ScopeMaterial, TexturePool: true, Writable: true},
		{Name: NodeConstraintExtensionName, Scope: ScopeNode, Writable: true},
		passThrough("VRMC_springBone"),
		passThrough("VRMC_springBone_limit"),
		passThrough("VRMC_springBone_extended_collider"),
		passThrough("VRMC_vrm_animation"),
	}
}
