package deobfuscator

import (
	"context"
	"fmt"

	"haruki-vroid-deobfuscator/extension"
	"haruki-vroid-deobfuscator/texture"
	harukiLogger "haruki-vroid-deobfuscator/utils/logger"

	"github.com/qmuntal/gltf"
)

var logger = harukiLogger.NewLogger("HarukiVRoidDeobfuscator", "INFO", nil)

type Request struct {
	AssetID      string
	RetrievalURL string
	// Expander is required for VersionCurrent assets.
	Expander Expander
	// Textures defaults to a pipeline without external tools.
	Textures *texture.Pipeline
	// Descriptors defaults to extension.DefaultDescriptors.
	Descriptors []extension.Descriptor
}

type Report struct {
	Context        ObfuscationContext
	TexturesBefore int
	TexturesAfter  int
	Images         []*texture.Result
	// Extensions holds the captured payload of every vendor extension, by name.
	Extensions map[string][]byte
}

// ResolveContext reads the marker extension and resolves the seed without
// touching the document.
func ResolveContext(doc *gltf.Document, assetID, retrievalURL string) (ObfuscationContext, error) {
	marker, ok, err := extension.PreviewMarker(doc)
	if err != nil {
		return ObfuscationContext{}, err
	}
	if !ok {
		return ObfuscationContext{}, ErrMissingMarker
	}
	oc := ObfuscationContext{Version: string(marker.Version), Timestamp: string(marker.Timestamp)}
	if !SupportedVersion(oc.Version) {
		return oc, &VersionError{Version: oc.Version}
	}
	seeds, err := ResolveSeeds(assetID, retrievalURL)
	if err != nil {
		return oc, err
	}
	seed, ok := seeds[oc.Timestamp]
	if !ok {
		return oc, &SeedError{Timestamp: oc.Timestamp}
	}
	oc.Seed = seed
	return oc, nil
}

// Run deobfuscates doc in place. Resolution errors are returned before the
// document is modified; any later error leaves it partially processed and the
// caller must discard it.
func Run(ctx context.Context, doc *gltf.Document, req Request) (*Report, error) {
	oc, err := ResolveContext(doc, req.AssetID, req.RetrievalURL)
	if err != nil {
		return nil, err
	}
	logger.Infof("Resolved obfuscation version %s, timestamp %s, seed %d", oc.Version, oc.Timestamp, oc.Seed)

	d, err := NewDeobfuscator(ctx, oc, req.Expander)
	if err != nil {
		return nil, err
	}

	descriptors := req.Descriptors
	if descriptors == nil {
		descriptors = extension.DefaultDescriptors()
	}
	session := extension.NewSession(doc, descriptors)
	if err := session.Preread(); err != nil {
		return nil, fmt.Errorf("extension preread: %w", err)
	}
	if err := session.Read(); err != nil {
		return nil, fmt.Errorf("extension read: %w", err)
	}
	session.StripUpstream()
	report := &Report{Context: oc, Extensions: session.Snapshots()}

	if err := d.ProcessDocument(ctx, doc); err != nil {
		return nil, err
	}

	before, after, err := texture.Prune(doc)
	if err != nil {
		return nil, err
	}
	report.TexturesBefore, report.TexturesAfter = before, after
	logger.Debugf("Pruned textures %d -> %d", before, after)

	pipeline := req.Textures
	if pipeline == nil {
		pipeline = texture.NewPipeline(texture.Tools{}, 1)
	}
	results, err := pipeline.TranscodeAll(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := texture.Apply(doc, results); err != nil {
		return nil, err
	}
	report.Images = results

	session.Prewrite()
	if err := session.Write(); err != nil {
		return nil, fmt.Errorf("extension write: %w", err)
	}
	logger.Infof("Deobfuscation finished: %d images, %d textures", len(doc.Images), len(doc.Textures))
	return report, nil
}
