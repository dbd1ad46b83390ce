package deobfuscator

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
)

// Expander is the deterministic seed-expansion routine used by the current
// obfuscation version. Identical inputs must give identical output.
type Expander interface {
	ExpandTexture(ctx context.Context, seed int64, domain uint64) ([]byte, error)
	ExpandBuffer(ctx context.Context, seed int64, domain uint64, length int) ([]float32, error)
}

// ExecExpander runs an external program:
//
//	<path> [args...] texture <seed> <domain>         -> 256*256*4 bytes on stdout
//	<path> [args...] buffer <seed> <domain> <length> -> length little-endian float32 on stdout
type ExecExpander struct {
	Path string
	Args []string
}

// NewExecExpander returns nil when no program is configured.
func NewExecExpander(path string, args []string) Expander {
	if path == "" {
		return nil
	}
	return &ExecExpander{Path: path, Args: args}
}

func (e *ExecExpander) ExpandTexture(ctx context.Context, seed int64, domain uint64) ([]byte, error) {
	out, err := e.run(ctx, "texture", strconv.FormatInt(seed, 10), strconv.FormatUint(domain, 10))
	if err != nil {
		return nil, err
	}
	if len(out) != metaTableBytes {
		return nil, fmt.Errorf("expander returned %d bytes, want %d", len(out), metaTableBytes)
	}
	return out, nil
}

func (e *ExecExpander) ExpandBuffer(ctx context.Context, seed int64, domain uint64, length int) ([]float32, error) {
	out, err := e.run(ctx, "buffer", strconv.FormatInt(seed, 10), strconv.FormatUint(domain, 10), strconv.Itoa(length))
	if err != nil {
		return nil, err
	}
	if len(out) != length*4 {
		return nil, fmt.Errorf("expander returned %d bytes, want %d", len(out), length*4)
	}
	values := make([]float32, length)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
	}
	return values, nil
}

func (e *ExecExpander) run(ctx context.Context, args ...string) ([]byte, error) {
	full := append(append([]string{}, e.Args...), args...)
	cmd := exec.CommandContext(ctx, e.Path, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to run expander %s: %w (%s)", e.Path, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}
