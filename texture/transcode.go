// Package texture converts GPU-compressed and mislabelled image payloads of a
// glTF document into plain raster images.
package texture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	harukiLogger "haruki-vroid-deobfuscator/utils/logger"

	"github.com/qmuntal/gltf"
)

var logger = harukiLogger.NewLogger("HarukiVRoidTexture", "INFO", nil)

type Tools struct {
	// Universal handles KTX2 payloads that cannot be decoded in process.
	Universal Decoder
	// Basis handles image/basis payloads.
	Basis Decoder
}

type Result struct {
	Image          int
	Name           string
	SourceMimeType string
	MimeType       string
	Data           []byte
	// Changed reports that Data differs from the original payload.
	Changed bool
}

type Pipeline struct {
	tools       Tools
	concurrency int
}

func NewPipeline(tools Tools, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pipeline{tools: tools, concurrency: concurrency}
}

// Transcode decides what to do with one image payload.
func (p *Pipeline) Transcode(ctx context.Context, index int, name, mimeType string, data []byte) (*Result, error) {
	res := &Result{Image: index, Name: name, SourceMimeType: mimeType, MimeType: mimeType, Data: data}
	fail := func(err error) (*Result, error) {
		return nil, &TranscodeError{Image: index, Name: name, MimeType: mimeType, Err: err}
	}

	switch mimeType {
	case MimeKTX2:
		img, err := DecodeKTX2(data)
		if errors.Is(err, ErrUnsupportedKTX2) {
			if p.tools.Universal == nil {
				return fail(fmt.Errorf("%w: %v", ErrToolUnavailable, err))
			}
			img, err = p.tools.Universal.Decode(ctx, data)
		}
		if err != nil {
			return fail(err)
		}
		png, err := EncodePNG(img)
		if err != nil {
			return fail(err)
		}
		res.MimeType, res.Data, res.Changed = MimePNG, png, true
	case MimeBasis:
		switch Sniff(data) {
		case KindPNG:
			res.MimeType = MimePNG
		case KindJPEG:
			res.MimeType = MimeJPEG
		default:
			if p.tools.Basis == nil {
				return fail(ErrToolUnavailable)
			}
			img, err := p.tools.Basis.Decode(ctx, data)
			if err != nil {
				return fail(err)
			}
			png, err := EncodePNG(img)
			if err != nil {
				return fail(err)
			}
			res.MimeType, res.Data, res.Changed = MimePNG, png, true
		}
	case MimePNG:
		if Sniff(data) == KindRIFF {
			png, err := reencodeWebP(data)
			if err != nil {
				return fail(err)
			}
			res.Data, res.Changed = png, true
		}
	}
	return res, nil
}

// imagePayload returns the bytes of an image stored in a buffer view.
func imagePayload(doc *gltf.Document, img *gltf.Image) ([]byte, bool, error) {
	if img.BufferView == nil {
		return nil, false, nil
	}
	bvIdx := *img.BufferView
	if bvIdx < 0 || bvIdx >= len(doc.BufferViews) {
		return nil, false, fmt.Errorf("buffer view %d out of range", bvIdx)
	}
	bv := doc.BufferViews[bvIdx]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, false, fmt.Errorf("buffer %d out of range", bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(data) {
		return nil, false, fmt.Errorf("buffer view %d outside of buffer %d", bvIdx, bv.Buffer)
	}
	return data[bv.ByteOffset:end], true, nil
}

// TranscodeAll transcodes every embedded image concurrently and returns the
// results in image order. The document is not modified.
func (p *Pipeline) TranscodeAll(ctx context.Context, doc *gltf.Document) ([]*Result, error) {
	results := make([]*Result, len(doc.Images))
	errChan := make(chan error, len(doc.Images))
	semaphore := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i, img := range doc.Images {
		if img == nil {
			continue
		}
		data, ok, err := imagePayload(doc, img)
		if err != nil {
			return nil, &TranscodeError{Image: i, Name: img.Name, MimeType: img.MimeType, Err: err}
		}
		if !ok {
			logger.Debugf("Image %d (%s) has no buffer view, leaving it untouched", i, img.Name)
			continue
		}
		wg.Add(1)
		go func(i int, name, mimeType string, data []byte) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					errChan <- &TranscodeError{Image: i, Name: name, MimeType: mimeType, Err: fmt.Errorf("decoder panic: %v", r)}
				}
			}()
			if err := ctx.Err(); err != nil {
				errChan <- err
				return
			}
			res, err := p.Transcode(ctx, i, name, mimeType, data)
			if err != nil {
				errChan <- err
				return
			}
			if res.MimeType != mimeType || res.Changed {
				logger.Debugf("Image %d (%s): %s -> %s", i, name, mimeType, res.MimeType)
			}
			results[i] = res
		}(i, img.Name, img.MimeType, data)
	}
	wg.Wait()
	close(errChan)

	var firstErr error
	errorCount := 0
	for e := range errChan {
		errorCount++
		if firstErr == nil {
			firstErr = e
		}
		logger.Warnf("Texture transcode error: %v", e)
	}
	if errorCount > 0 {
		return nil, firstErr
	}
	return results, nil
}

// Apply relabels images and writes replaced payloads back through Repack.
func Apply(doc *gltf.Document, results []*Result) error {
	replacements := make(map[int][]byte)
	for _, res := range results {
		if res == nil {
			continue
		}
		img := doc.Images[res.Image]
		img.MimeType = res.MimeType
		if res.Changed && img.BufferView != nil {
			replacements[*img.BufferView] = res.Data
		}
	}
	return Repack(doc, replacements)
}
