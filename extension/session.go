// Package extension lifts vendor extension payloads out of a glTF document before
// it is rewritten and puts them back, with texture references remapped, after.
package extension

import (
	"encoding/json"
	"fmt"
	"strconv"

	harukiLogger "haruki-vroid-deobfuscator/utils/logger"
	"haruki-vroid-deobfuscator/utils/orderedjson"

	"github.com/iancoleman/orderedmap"
	"github.com/qmuntal/gltf"
)

var logger = harukiLogger.NewLogger("HarukiVRoidExtension", "INFO", nil)

type State int

const (
	StateUnread State = iota
	StateCaptured
	StateReconciled
)

type capturedRef struct {
	path   orderedjson.Path
	source int
}

type capturedEntry struct {
	owner int
	raw   []byte
	tree  any
	refs  []capturedRef
}

// Instance is one descriptor bound to one document.
type Instance struct {
	Descriptor
	state   State
	entries []capturedEntry
}

func (i *Instance) State() State {
	return i.state
}

// Session owns the extension state of one document for one pipeline run.
type Session struct {
	doc       *gltf.Document
	instances []*Instance
	byName    map[string]*Instance
	pool      *TexturePoolSnapshot
}

func NewSession(doc *gltf.Document, descriptors []Descriptor) *Session {
	s := &Session{doc: doc, byName: make(map[string]*Instance, len(descriptors))}
	for _, d := range descriptors {
		inst := &Instance{Descriptor: d}
		s.instances = append(s.instances, inst)
		s.byName[d.Name] = inst
	}
	return s
}

func (s *Session) Instance(name string) (*Instance, bool) {
	inst, ok := s.byName[name]
	return inst, ok
}

func (s *Session) present(inst *Instance) bool {
	for _, ext := range entityExtensions(s.doc, inst.Scope) {
		if ext == nil {
			continue
		}
		if _, ok := (*ext)[inst.Name]; ok {
			return true
		}
	}
	return false
}

// Preread runs the repair hooks and captures the texture pool once, before the
// texture array is touched by anyone else.
func (s *Session) Preread() error {
	needPool := false
	for _, inst := range s.instances {
		if !s.present(inst) {
			continue
		}
		if inst.Preread != nil {
			if err := inst.Preread(s); err != nil {
				return err
			}
		}
		if inst.TexturePool {
			needPool = true
		}
	}
	if needPool && s.pool == nil {
		s.pool = CaptureTexturePool(s.doc)
		logger.Debugf("Captured texture pool with %d entries", len(s.pool.entries))
	}
	return nil
}

// Read lifts every known extension payload out of the document.
func (s *Session) Read() error {
	for _, inst := range s.instances {
		if inst.state != StateUnread {
			continue
		}
		for owner, ext := range entityExtensions(s.doc, inst.Scope) {
			if ext == nil {
				continue
			}
			v, ok := (*ext)[inst.Name]
			if !ok {
				continue
			}
			entry, err := s.capture(inst, owner, v)
			if err != nil {
				return err
			}
			inst.entries = append(inst.entries, entry)
			delete(*ext, inst.Name)
		}
		if len(inst.entries) > 0 {
			inst.state = StateCaptured
		}
	}
	return nil
}

func (s *Session) capture(inst *Instance, owner int, v any) (capturedEntry, error) {
	raw, err := rawJSON(v)
	if err != nil {
		return capturedEntry{}, fmt.Errorf("%s[%d]: %w", inst.Name, owner, err)
	}
	entry := capturedEntry{owner: owner, raw: append([]byte(nil), raw...)}
	if !inst.Writable || inst.TextureRefs == nil {
		return entry, nil
	}
	tree, err := orderedjson.Parse(raw)
	if err != nil {
		return capturedEntry{}, fmt.Errorf("%s[%d]: %w", inst.Name, owner, err)
	}
	entry.tree = tree
	for _, path := range inst.TextureRefs(tree) {
		v, _ := orderedjson.Get(tree, path)
		idx, _ := orderedjson.Index(v)
		if idx >= len(s.doc.Textures) || s.doc.Textures[idx] == nil || s.doc.Textures[idx].Source == nil {
			return capturedEntry{}, &RefError{Extension: inst.Name, Owner: owner, Path: pathString(path), Index: idx, Source: -1}
		}
		entry.refs = append(entry.refs, capturedRef{path: path, source: *s.doc.Textures[idx].Source})
	}
	return entry, nil
}

// Upstream returns the root-level payload captured for name.
func (s *Session) Upstream(name string) ([]byte, bool) {
	inst, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	if len(inst.entries) == 0 {
		return nil, false
	}
	return inst.entries[0].raw, true
}

// StripUpstream drops every upstream-only extension name from the document's
// declarations so it cannot reach the output.
func (s *Session) StripUpstream() {
	for _, inst := range s.instances {
		if inst.Writable {
			continue
		}
		s.doc.ExtensionsUsed = removeName(s.doc.ExtensionsUsed, inst.Name)
		s.doc.ExtensionsRequired = removeName(s.doc.ExtensionsRequired, inst.Name)
	}
}

// Prewrite restores the texture pool after pruning.
func (s *Session) Prewrite() {
	if s.pool == nil {
		return
	}
	s.pool.Reapply(s.doc)
	s.pool = nil
	logger.Debugf("Texture pool reapplied, %d textures", len(s.doc.Textures))
}

// Write re-emits every captured writable extension.
func (s *Session) Write() error {
	for _, inst := range s.instances {
		if !inst.Writable || inst.state != StateCaptured {
			continue
		}
		if err := s.write(inst); err != nil {
			return err
		}
	}
	return nil
}

// WriteExtension re-emits a single extension by name.
func (s *Session) WriteExtension(name string) error {
	inst, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExtension, name)
	}
	if !inst.Writable {
		return &WriteError{Name: name}
	}
	if inst.state != StateCaptured {
		return fmt.Errorf("%s: %w", name, ErrInvalidState)
	}
	return s.write(inst)
}

func (s *Session) write(inst *Instance) error {
	sourceToIndex := make(map[int]int, len(s.doc.Textures))
	for i, tex := range s.doc.Textures {
		if tex != nil && tex.Source != nil {
			sourceToIndex[*tex.Source] = i
		}
	}
	targets := entityExtensions(s.doc, inst.Scope)
	for _, e := range inst.entries {
		raw := e.raw
		if len(e.refs) > 0 {
			tree := e.tree
			for _, ref := range e.refs {
				idx, ok := sourceToIndex[ref.source]
				if !ok {
					return &RefError{Extension: inst.Name, Owner: e.owner, Path: pathString(ref.path), Index: -1, Source: ref.source}
				}
				var err error
				if tree, err = orderedjson.Set(tree, ref.path, float64(idx)); err != nil {
					return fmt.Errorf("%s[%d]: %w", inst.Name, e.owner, err)
				}
			}
			out, err := orderedjson.Marshal(tree)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", inst.Name, e.owner, err)
			}
			raw = out
		}
		if e.owner >= len(targets) || targets[e.owner] == nil {
			return fmt.Errorf("%s: owner %d no longer exists", inst.Name, e.owner)
		}
		ext := targets[e.owner]
		if *ext == nil {
			*ext = gltf.Extensions{}
		}
		(*ext)[inst.Name] = json.RawMessage(raw)
	}
	if !contains(s.doc.ExtensionsUsed, inst.Name) {
		s.doc.ExtensionsUsed = append(s.doc.ExtensionsUsed, inst.Name)
	}
	inst.state = StateReconciled
	return nil
}

// Snapshots returns the captured payload of each extension as JSON, keyed by
// owner index for per-entity extensions. Used for debug dumps.
func (s *Session) Snapshots() map[string][]byte {
	out := make(map[string][]byte)
	for _, inst := range s.instances {
		if len(inst.entries) == 0 {
			continue
		}
		if inst.Scope == ScopeRoot {
			out[inst.Name] = inst.entries[0].raw
			continue
		}
		om := orderedmap.New()
		om.SetEscapeHTML(false)
		for _, e := range inst.entries {
			om.Set(strconv.Itoa(e.owner), json.RawMessage(e.raw))
		}
		data, err := orderedjson.Marshal(om)
		if err != nil {
			logger.Warnf("Failed to snapshot %s: %v", inst.Name, err)
			continue
		}
		out[inst.Name] = data
	}
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func pathString(p orderedjson.Path) string {
	s := ""
	for _, el := range p {
		switch v := el.(type) {
		case string:
			s += "." + v
		case int:
			s += "[" + strconv.Itoa(v) + "]"
		}
	}
	return s
}
