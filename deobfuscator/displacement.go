package deobfuscator

import (
	"context"
	"fmt"
	"math"

	"github.com/qmuntal/gltf"
)

// ProcessedSet holds, per axis, the coordinate values already written by the
// displacement reversal. Membership follows SameValueZero: +0 equals -0 and
// every NaN equals every other NaN.
type ProcessedSet [3]map[uint32]struct{}

func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{{}, {}, {}}
}

func valueKey(v float32) uint32 {
	if v == 0 {
		return 0
	}
	if v != v {
		return 0x7fc00000
	}
	return math.Float32bits(v)
}

func (p *ProcessedSet) Has(axis int, v float32) bool {
	_, ok := p[axis][valueKey(v)]
	return ok
}

func (p *ProcessedSet) Add(axis int, v float32) {
	p[axis][valueKey(v)] = struct{}{}
}

func (p *ProcessedSet) seen(pos [3]float32) bool {
	return p.Has(0, pos[0]) && p.Has(1, pos[1]) && p.Has(2, pos[2])
}

type Deobfuscator struct {
	context  ObfuscationContext
	table    *MetaTable
	expander Expander
}

// NewDeobfuscator validates the version and builds the lookup table.
func NewDeobfuscator(ctx context.Context, oc ObfuscationContext, expander Expander) (*Deobfuscator, error) {
	d := &Deobfuscator{context: oc, expander: expander}
	switch oc.Version {
	case VersionLegacy:
		d.table = NewLegacyMetaTable(oc.Seed)
	case VersionCurrent:
		table, err := NewExpandedMetaTable(ctx, expander, oc.Seed)
		if err != nil {
			return nil, err
		}
		d.table = table
	default:
		return nil, &VersionError{Version: oc.Version}
	}
	return d, nil
}

func (d *Deobfuscator) Context() ObfuscationContext {
	return d.context
}

func (d *Deobfuscator) Table() *MetaTable {
	return d.table
}

// GenerateMeta builds the per-primitive meta attribute: one (u, v) pair per vertex.
func (d *Deobfuscator) GenerateMeta(ctx context.Context, vertexCount int) ([]float32, error) {
	n := 2 * vertexCount
	if d.context.Version == VersionCurrent {
		if d.expander == nil {
			return nil, ErrExpanderUnavailable
		}
		meta, err := d.expander.ExpandBuffer(ctx, d.context.Seed, ExpansionDomain, n)
		if err != nil {
			return nil, fmt.Errorf("failed to expand meta attribute: %w", err)
		}
		return meta, nil
	}
	g := NewLaneRandomGenerator(d.context.Seed)
	meta := make([]float32, n)
	for i := range meta {
		meta[i] = float32((float64(g.NextInRange(256)) + 0.5) / 256)
	}
	return meta, nil
}

func adjustComponent(value float32, exponent float64) float32 {
	return float32(float64(value) * math.Pow(2, exponent/8))
}

func metaCell(m float32) (int, error) {
	c := int(math.Floor(float64(m) * MetaTableSize))
	if c < 0 || c >= MetaTableSize {
		return 0, fmt.Errorf("meta value %v outside of the lookup table", m)
	}
	return c, nil
}

// ReverseDisplacement undoes the exponential distortion of positions in place.
// Vertices whose three raw components were all already written (per processed)
// are left alone.
func (d *Deobfuscator) ReverseDisplacement(positions [][3]float32, meta []float32, processed *ProcessedSet) error {
	if !SupportedVersion(d.context.Version) {
		return &VersionError{Version: d.context.Version}
	}
	if len(meta) < 2*len(positions) {
		return fmt.Errorf("meta attribute has %d values for %d vertices", len(meta), len(positions))
	}
	for i := range positions {
		u, err := metaCell(meta[i*2])
		if err != nil {
			return err
		}
		v, err := metaCell(meta[i*2+1])
		if err != nil {
			return err
		}
		ex, ey, ez := d.table.Lookup(u, v)

		if processed.seen(positions[i]) {
			continue
		}

		positions[i][0] = adjustComponent(positions[i][0], ex)
		positions[i][1] = adjustComponent(positions[i][1], ey)
		positions[i][2] = adjustComponent(positions[i][2], ez)

		processed.Add(0, positions[i][0])
		processed.Add(1, positions[i][1])
		processed.Add(2, positions[i][2])
	}
	return nil
}

const positionAttribute = "POSITION"

type primitiveMeta struct {
	accessor int
	meta     []float32
}

// ProcessDocument generates a meta attribute for every primitive, then reverses
// the displacement of every POSITION accessor with one shared ProcessedSet.
func (d *Deobfuscator) ProcessDocument(ctx context.Context, doc *gltf.Document) error {
	var pending []primitiveMeta
	for _, mesh := range doc.Meshes {
		for _, primitive := range mesh.Primitives {
			idx, ok := primitive.Attributes[positionAttribute]
			if !ok {
				continue
			}
			if idx < 0 || idx >= len(doc.Accessors) {
				return fmt.Errorf("%w: POSITION references missing accessor %d", ErrUnsupportedAccessor, idx)
			}
			meta, err := d.GenerateMeta(ctx, doc.Accessors[idx].Count)
			if err != nil {
				return err
			}
			pending = append(pending, primitiveMeta{accessor: idx, meta: meta})
		}
	}

	logger.Infof("Processing vertex displacement for %d primitives", len(pending))
	processed := NewProcessedSet()
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		acr := doc.Accessors[p.accessor]
		view, err := newPositionView(doc, acr)
		if err != nil {
			return err
		}
		positions := view.read()
		if err := d.ReverseDisplacement(positions, p.meta, processed); err != nil {
			return err
		}
		view.write(positions)
		updateBounds(acr, positions)
	}
	return nil
}
