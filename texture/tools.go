package texture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
)

// Decoder turns a GPU texture payload into a raster image.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (image.Image, error)
}

// ExecDecoder runs an external transcoder. The argument list uses the
// placeholders "src" and "dst" for the input payload and the PNG it must write.
type ExecDecoder struct {
	Name   string
	Path   string
	Args   []string
	SrcExt string
}

// NewExecDecoder returns nil when no program is configured.
func NewExecDecoder(name, path string, args []string, srcExt string) Decoder {
	if path == "" {
		return nil
	}
	return &ExecDecoder{Name: name, Path: path, Args: args, SrcExt: srcExt}
}

func (d *ExecDecoder) Decode(ctx context.Context, data []byte) (image.Image, error) {
	dir, err := os.MkdirTemp("", "haruki-vroid-"+d.Name+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()
	src := filepath.Join(dir, "input."+d.SrcExt)
	dst := filepath.Join(dir, "output.png")
	if err := os.WriteFile(src, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write transcoder input: %w", err)
	}

	args := make([]string, len(d.Args))
	copy(args, d.Args)
	for i, arg := range args {
		if arg == "src" {
			args[i] = src
		} else if arg == "dst" {
			args[i] = dst
		}
	}
	logger.Debugf("Running %s: %s %s", d.Name, d.Path, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, d.Path, args...)
	var stderr bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", d.Name, err, strings.TrimSpace(stderr.String()))
	}
	img, err := imgio.Open(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s output: %w", d.Name, err)
	}
	return img, nil
}
