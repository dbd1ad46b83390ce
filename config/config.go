package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type BackendConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	SSL                      bool   `yaml:"ssl"`
	SSLCert                  string `yaml:"ssl_cert"`
	SSLKey                   string `yaml:"ssl_key"`
	LogLevel                 string `yaml:"log_level"`
	MainLogFile              string `yaml:"main_log_file"`
	AccessLog                string `yaml:"access_log"`
	AccessLogPath            string `yaml:"access_log_path"`
	EnableAuthorization      bool   `yaml:"enable_authorization,omitempty"`
	AcceptUserAgentPrefix    string `yaml:"accept_user_agent_prefix,omitempty"`
	AcceptAuthorizationToken string `yaml:"accept_authorization_token,omitempty"`
}

type ToolConfig struct {
	ExpanderPath            string   `yaml:"expander_path,omitempty"`
	ExpanderArgs            []string `yaml:"expander_args,omitempty"`
	UniversalTranscoderPath string   `yaml:"universal_transcoder_path,omitempty"`
	UniversalTranscoderArgs []string `yaml:"universal_transcoder_args,omitempty"`
	BasisTranscoderPath     string   `yaml:"basis_transcoder_path,omitempty"`
	BasisTranscoderArgs     []string `yaml:"basis_transcoder_args,omitempty"`
}

type HubConfig struct {
	APIBase          string `yaml:"api_base,omitempty"`
	APIVersion       string `yaml:"api_version,omitempty"`
	UserAgent        string `yaml:"user_agent,omitempty"`
	DownloadMotions  bool   `yaml:"download_motions,omitempty"`
	FetchDisplayName bool   `yaml:"fetch_display_name,omitempty"`
}

type OutputConfig struct {
	OutputDir                  string `yaml:"output_dir,omitempty"`
	CacheDir                   string `yaml:"cache_dir,omitempty"`
	DebugDir                   string `yaml:"debug_dir,omitempty"`
	MotionDir                  string `yaml:"motion_dir,omitempty"`
	DumpTextures               bool   `yaml:"dump_textures,omitempty"`
	ConvertDebugTexturesToWebp bool   `yaml:"convert_debug_textures_to_webp,omitempty"`
	UploadToCloud              bool   `yaml:"upload_to_cloud,omitempty"`
	RemoveLocalAfterUpload     bool   `yaml:"remove_local_after_upload,omitempty"`
}

type RemoteStorageConfig struct {
	Type            string   `yaml:"type"`
	Base            string   `yaml:"base"`
	Program         string   `yaml:"program,omitempty"`
	Args            []string `yaml:"args,omitempty"`
	Endpoint        string   `yaml:"endpoint,omitempty"`
	Region          string   `yaml:"region,omitempty"`
	Bucket          string   `yaml:"bucket,omitempty"`
	AccessKeyID     string   `yaml:"access_key_id,omitempty"`
	SecretAccessKey string   `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool     `yaml:"use_path_style,omitempty"`
}

type Config struct {
	Proxy                string                `yaml:"proxy,omitempty"`
	ConcurrentTranscodes int                   `yaml:"concurrent_transcodes,omitempty"`
	ConcurrentUploads    int                   `yaml:"concurrent_uploads,omitempty"`
	Backend              BackendConfig         `yaml:"backend,omitempty"`
	Tools                ToolConfig            `yaml:"tool,omitempty"`
	Hub                  HubConfig             `yaml:"hub,omitempty"`
	Output               OutputConfig          `yaml:"output,omitempty"`
	RemoteStorages       []RemoteStorageConfig `yaml:"remote_storages,omitempty"`
}

const DefaultConfigPath = "haruki-vroid-configs.yaml"

var Version = "v1.0.0-dev"
var Cfg = Default()

func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ConcurrentTranscodes <= 0 {
		c.ConcurrentTranscodes = 4
	}
	if c.ConcurrentUploads <= 0 {
		c.ConcurrentUploads = 4
	}
	if c.Backend.Host == "" {
		c.Backend.Host = "127.0.0.1"
	}
	if c.Backend.Port == 0 {
		c.Backend.Port = 8765
	}
	if c.Backend.LogLevel == "" {
		c.Backend.LogLevel = "INFO"
	}
	if c.Hub.APIBase == "" {
		c.Hub.APIBase = "https://hub.vroid.com/api"
	}
	if c.Hub.APIVersion == "" {
		c.Hub.APIVersion = "11"
	}
	if c.Hub.UserAgent == "" {
		c.Hub.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"
	}
	if c.Output.OutputDir == "" {
		c.Output.OutputDir = "."
	}
	if c.Output.CacheDir == "" {
		c.Output.CacheDir = "./cache"
	}
	if c.Output.DebugDir == "" {
		c.Output.DebugDir = "./debug"
	}
	if c.Output.MotionDir == "" {
		c.Output.MotionDir = "./VRMAmotions"
	}
	if len(c.Tools.UniversalTranscoderArgs) == 0 {
		c.Tools.UniversalTranscoderArgs = []string{"src", "dst"}
	}
	if len(c.Tools.BasisTranscoderArgs) == 0 {
		c.Tools.BasisTranscoderArgs = []string{"src", "dst"}
	}
}

// Load reads path into Cfg. A missing file leaves the defaults in place.
func Load(path string) error {
	cfg, err := Read(path)
	if err != nil {
		return err
	}
	Cfg = cfg
	return nil
}

func Read(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return cfg, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}
