package utils

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

var ErrInvalidTarget = errors.New("target is neither a model id nor a hub URL")

var unsafeFilenamePattern = regexp2.MustCompile(`[<>:"/\\|?*\x00-\x1f]`, regexp2.None)

// MakeSafeFilename replaces characters that are not allowed in file names
// with _x followed by two lowercase hex digits and _.
func MakeSafeFilename(name string) string {
	safe, err := unsafeFilenamePattern.ReplaceFunc(name, func(m regexp2.Match) string {
		return fmt.Sprintf("_x%02x_", m.String()[0])
	}, -1, -1)
	if err != nil {
		return name
	}
	return safe
}

func isModelID(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// ParseTarget accepts a numeric model id or a hub URL ending with one.
func ParseTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if isModelID(target) {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] == "" {
			continue
		}
		if isModelID(segments[i]) {
			return segments[i], nil
		}
		break
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTarget, target)
}

func OutputFileName(id string, displayName string) string {
	if displayName == "" {
		return fmt.Sprintf("[%s].deobf.vrm", id)
	}
	return fmt.Sprintf("[%s].%s.deobf.vrm", id, MakeSafeFilename(displayName))
}
