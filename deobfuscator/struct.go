package deobfuscator

const (
	VersionLegacy  = "4.0"
	VersionCurrent = "5.0"
)

// ObfuscationContext identifies how one asset was obfuscated. It is resolved
// once per document and never changes afterwards.
type ObfuscationContext struct {
	Seed      int64  `json:"seed"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func SupportedVersion(version string) bool {
	return version == VersionLegacy || version == VersionCurrent
}
