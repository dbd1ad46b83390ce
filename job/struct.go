package job

import "haruki-vroid-deobfuscator/deobfuscator"

// Payload is the body of an asynchronous deobfuscation request.
type Payload struct {
	Target          string `json:"target"`
	NoCache         bool   `json:"no_cache,omitempty"`
	DownloadMotions *bool  `json:"download_motions,omitempty"`
	DisplayName     string `json:"display_name,omitempty"`
}

type Options struct {
	UseCache        bool
	DownloadMotions bool
	// DisplayName overrides the og:title lookup.
	DisplayName string
}

type Result struct {
	ID          string
	DisplayName string
	OutputPath  string
	Data        []byte
	Report      *deobfuscator.Report
	DebugFiles  []string
	Motions     int
}
