package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mediaforge/mediaforge/internal/api"
	"github.com/mediaforge/mediaforge/internal/cleanup"
	"github.com/mediaforge/mediaforge/internal/ffmpeg"
	"github.com/mitchellh/go-homedir"
)

const forgeUserDirSuffix = "mediaforge"

// ForgeConfig is the user-supplied configuration, loaded from a YAML file
// and/or the environment.
type ForgeConfig struct {
	API          api.Config     `yaml:"api"`
	Ffmpeg       ffmpeg.Config  `yaml:"ffmpeg"`
	Cleanup      cleanup.Config `yaml:"cleanup"`
	OutputPath   string         `yaml:"output_dir" env:"OUTPUT_DIR"`
	UploadPath   string         `yaml:"upload_dir" env:"UPLOAD_DIR"`
	FetchTimeout time.Duration  `yaml:"fetch_timeout" env:"FETCH_TIMEOUT" env-default:"45m"`
}

// LoadFromFile reads the YAML config at the path provided, overlaying any
// environment variable overrides.
func (config *ForgeConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	return nil
}

// LoadFromEnv populates the config purely from environment variables and
// defaults, for deployments without a config file.
func (config *ForgeConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return nil
}

// getOutputPath returns the directory under which per-task artifact
// directories are created, deriving a cache-dir default when unconfigured.
func (config *ForgeConfig) getOutputPath() string {
	if config.OutputPath != "" {
		return config.OutputPath
	}

	return filepath.Join(defaultBaseDir(), "tasks")
}

func (config *ForgeConfig) getUploadPath() string {
	if config.UploadPath != "" {
		return config.UploadPath
	}

	return filepath.Join(defaultBaseDir(), "uploads")
}

func defaultBaseDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, forgeUserDirSuffix)
	}

	// Fall back to the home directory for platforms without a cache dir.
	home, err := homedir.Dir()
	if err != nil {
		panic(fmt.Sprintf("FAILURE to derive any usable data dir: %s", err))
	}

	return filepath.Join(home, "."+forgeUserDirSuffix)
}
