// Package job runs one deobfuscation end to end: retrieval, decryption,
// deobfuscation, export and upload.
package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"haruki-vroid-deobfuscator/config"
	"haruki-vroid-deobfuscator/deobfuscator"
	"haruki-vroid-deobfuscator/fetcher"
	"haruki-vroid-deobfuscator/texture"
	"haruki-vroid-deobfuscator/utils"
	"haruki-vroid-deobfuscator/utils/cloud"
	"haruki-vroid-deobfuscator/utils/exporter"
	harukiLogger "haruki-vroid-deobfuscator/utils/logger"

	"github.com/qmuntal/gltf"
)

var logger = harukiLogger.NewLogger("HarukiVRoidJob", "INFO", nil)

var ErrInvalidContainer = errors.New("invalid container")

type HarukiVRoidDeobfuscateJob struct {
	ctx      context.Context
	cfg      config.Config
	client   *fetcher.Client
	cache    *fetcher.Cache
	expander deobfuscator.Expander
	textures *texture.Pipeline
}

func NewHarukiVRoidDeobfuscateJob(ctx context.Context, cfg config.Config) *HarukiVRoidDeobfuscateJob {
	tools := texture.Tools{
		Universal: texture.NewExecDecoder("universal", cfg.Tools.UniversalTranscoderPath, cfg.Tools.UniversalTranscoderArgs, "ktx2"),
		Basis:     texture.NewExecDecoder("basis", cfg.Tools.BasisTranscoderPath, cfg.Tools.BasisTranscoderArgs, "basis"),
	}
	return &HarukiVRoidDeobfuscateJob{
		ctx:      ctx,
		cfg:      cfg,
		client:   fetcher.NewClient(cfg.Hub, cfg.Proxy),
		cache:    fetcher.NewCache(cfg.Output.CacheDir),
		expander: deobfuscator.NewExecExpander(cfg.Tools.ExpanderPath, cfg.Tools.ExpanderArgs),
		textures: texture.NewPipeline(tools, cfg.ConcurrentTranscodes),
	}
}

func (j *HarukiVRoidDeobfuscateJob) Close() {
	j.client.Close()
}

// Run retrieves target (a model id or hub URL) and deobfuscates it.
func (j *HarukiVRoidDeobfuscateJob) Run(target string, opts Options) (*Result, error) {
	id, err := utils.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	logger.Infof("Starting deobfuscation of model %s", id)

	asset, err := j.client.Retrieve(j.ctx, j.cache, id, opts.UseCache)
	if err != nil {
		return nil, err
	}

	displayName := opts.DisplayName
	if displayName == "" && j.cfg.Hub.FetchDisplayName && strings.Contains(target, "://") {
		if displayName, err = j.client.FetchDisplayName(j.ctx, strings.TrimSpace(target)); err != nil {
			logger.Warnf("Failed to fetch display name of %s: %v", id, err)
			displayName = ""
		}
	}

	result, err := j.Process(id, asset.URL, asset.Container, displayName)
	if err != nil {
		return nil, err
	}

	if opts.DownloadMotions {
		result.Motions = j.downloadMotions(id)
	}
	logger.Infof("Model %s finished: %s", id, result.OutputPath)
	return result, nil
}

func (j *HarukiVRoidDeobfuscateJob) downloadMotions(id string) int {
	motions, body, err := j.client.FetchMotions(j.ctx, id)
	if err != nil {
		logger.Warnf("Failed to list motions of %s: %v", id, err)
		return 0
	}
	if j.cfg.Output.DumpTextures && body != nil {
		if err := os.MkdirAll(j.debugDir(id), 0o755); err != nil {
			logger.Warnf("Failed to create debug dir of %s: %v", id, err)
		} else if _, err := exporter.DumpJSON(j.debugDir(id), "character_model", body); err != nil {
			logger.Warnf("Failed to dump character model of %s: %v", id, err)
		}
	}
	saved, err := j.client.DownloadMotions(j.ctx, motions, filepath.Join(j.cfg.Output.MotionDir, id))
	if err != nil {
		logger.Warnf("Failed to download motions of %s: %v", id, err)
	}
	logger.Infof("Saved %d of %d motions for %s", saved, len(motions), id)
	return saved
}

// Process deobfuscates a decrypted container and writes the result. Nothing is
// written when any step fails.
func (j *HarukiVRoidDeobfuscateJob) Process(id, retrievalURL string, container []byte, displayName string) (*Result, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(container)).Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}

	report, err := deobfuscator.Run(j.ctx, doc, deobfuscator.Request{
		AssetID:      id,
		RetrievalURL: retrievalURL,
		Expander:     j.expander,
		Textures:     j.textures,
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode container: %w", err)
	}

	if err := os.MkdirAll(j.cfg.Output.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	outputPath := filepath.Join(j.cfg.Output.OutputDir, utils.OutputFileName(id, displayName))
	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", outputPath, err)
	}
	logger.Infof("Saved %s (%d bytes)", outputPath, buf.Len())

	result := &Result{
		ID:          id,
		DisplayName: displayName,
		OutputPath:  outputPath,
		Data:        buf.Bytes(),
		Report:      report,
	}
	if j.cfg.Output.DumpTextures {
		result.DebugFiles = j.dump(id, report)
	}

	if j.cfg.Output.UploadToCloud {
		if err := cloud.UploadToAllStorages(j.ctx, j.cfg.RemoteStorages, []string{outputPath},
			j.cfg.Output.OutputDir, j.cfg.ConcurrentUploads, j.cfg.Output.RemoveLocalAfterUpload); err != nil {
			logger.Errorf("Failed to upload %s: %v", outputPath, err)
			return result, err
		}
	}
	return result, nil
}

func (j *HarukiVRoidDeobfuscateJob) debugDir(id string) string {
	return filepath.Join(j.cfg.Output.DebugDir, id)
}

func (j *HarukiVRoidDeobfuscateJob) dump(id string, report *deobfuscator.Report) []string {
	dir := j.debugDir(id)
	if err := exporter.PrepareDebugDir(dir); err != nil {
		logger.Warnf("Skipping debug dump: %v", err)
		return nil
	}
	textures, err := exporter.DumpTextures(dir, report.Images, j.cfg.Output.ConvertDebugTexturesToWebp)
	if err != nil {
		logger.Warnf("Texture dump incomplete: %v", err)
	}
	extensions, err := exporter.DumpExtensions(dir, report.Extensions)
	if err != nil {
		logger.Warnf("Extension dump incomplete: %v", err)
	}
	return append(textures, extensions...)
}
