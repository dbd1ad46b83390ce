package deobfuscator

import (
	"errors"
	"fmt"
)

var (
	ErrSeedNotFound        = errors.New("seed not found")
	ErrInvalidAssetID      = errors.New("invalid asset id")
	ErrUnsupportedVersion  = errors.New("unsupported obfuscation version")
	ErrMissingMarker       = errors.New("obfuscation marker extension missing")
	ErrUnsupportedAccessor = errors.New("unsupported position accessor")
	ErrExpanderUnavailable = errors.New("seed expander not configured")
)

type SeedError struct {
	Timestamp string
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seed not found for timestamp: %s", e.Timestamp)
}

func (e *SeedError) Unwrap() error { return ErrSeedNotFound }

type VersionError struct {
	Version string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unknown obfuscation version: %s", e.Version)
}

func (e *VersionError) Unwrap() error { return ErrUnsupportedVersion }
