package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultProbeBaud      = 115200
	DefaultMonitorBaud    = 115200
	DefaultFlashBaud      = 921600
	DefaultProbeHoldMS    = 100
	DefaultStartupDelayMS = 500
	DefaultSettleMS       = 3000
	DefaultTailLines      = 3

	DefaultChip      = "esp32"
	DefaultFlashMode = "dio"
	DefaultFlashFreq = "40m"
	DefaultFlashSize = "detect"

	// DefaultArtifactsDir is resolved against the executable's directory.
	DefaultArtifactsDir = "../esp32-controller/.pio/build/esp32dev"

	DefaultMarker          = "Writing at"
	DefaultProgressBase    = 30
	DefaultProgressScale   = 1.5
	DefaultProgressCeiling = 95

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

const (
	appDirName     = "railflash"
	localDirName   = ".railflash"
	configFileName = "config.json"
)

// Config holds all railflash configuration.
type Config struct {
	Serial   SerialConfig   `mapstructure:"serial" json:"serial" yaml:"serial"`
	Flash    FlashConfig    `mapstructure:"flash" json:"flash" yaml:"flash"`
	Progress ProgressConfig `mapstructure:"progress" json:"progress" yaml:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging" json:"logging" yaml:"logging"`
}

// SerialConfig controls device detection and the serial monitor.
type SerialConfig struct {
	// Port pins detection to a single port instead of scanning all of them.
	Port           string `mapstructure:"port" json:"port,omitempty" yaml:"port,omitempty"`
	ProbeBaud      int    `mapstructure:"probe-baud" json:"probe-baud" yaml:"probe-baud"`
	ProbeHoldMS    int    `mapstructure:"probe-hold-ms" json:"probe-hold-ms" yaml:"probe-hold-ms"`
	StartupDelayMS int    `mapstructure:"startup-delay-ms" json:"startup-delay-ms" yaml:"startup-delay-ms"`
	MonitorBaud    int    `mapstructure:"monitor-baud" json:"monitor-baud" yaml:"monitor-baud"`
}

// FlashConfig controls artifact lookup and the esptool invocation.
type FlashConfig struct {
	ArtifactsDir string `mapstructure:"artifacts-dir" json:"artifacts-dir" yaml:"artifacts-dir"`
	// Tool is the esptool path. Empty means the PlatformIO install location.
	Tool string `mapstructure:"tool" json:"tool,omitempty" yaml:"tool,omitempty"`
	// Interpreter runs .py tools. Empty means python/python3 by OS.
	Interpreter string `mapstructure:"interpreter" json:"interpreter,omitempty" yaml:"interpreter,omitempty"`
	Chip        string `mapstructure:"chip" json:"chip" yaml:"chip"`
	Baud        int    `mapstructure:"baud" json:"baud" yaml:"baud"`
	Mode        string `mapstructure:"mode" json:"mode" yaml:"mode"`
	Freq        string `mapstructure:"freq" json:"freq" yaml:"freq"`
	Size        string `mapstructure:"size" json:"size" yaml:"size"`
	SettleMS    int    `mapstructure:"settle-ms" json:"settle-ms" yaml:"settle-ms"`
	TailLines   int    `mapstructure:"tail-lines" json:"tail-lines" yaml:"tail-lines"`
}

// ProgressConfig tunes the marker-count progress heuristic.
type ProgressConfig struct {
	Marker  string  `mapstructure:"marker" json:"marker" yaml:"marker"`
	Base    int     `mapstructure:"base" json:"base" yaml:"base"`
	Scale   float64 `mapstructure:"scale" json:"scale" yaml:"scale"`
	Ceiling int     `mapstructure:"ceiling" json:"ceiling" yaml:"ceiling"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
	File   string `mapstructure:"file" json:"file,omitempty" yaml:"file,omitempty"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Serial: SerialConfig{
			ProbeBaud:      DefaultProbeBaud,
			ProbeHoldMS:    DefaultProbeHoldMS,
			StartupDelayMS: DefaultStartupDelayMS,
			MonitorBaud:    DefaultMonitorBaud,
		},
		Flash: FlashConfig{
			ArtifactsDir: DefaultArtifactsDir,
			Chip:         DefaultChip,
			Baud:         DefaultFlashBaud,
			Mode:         DefaultFlashMode,
			Freq:         DefaultFlashFreq,
			Size:         DefaultFlashSize,
			SettleMS:     DefaultSettleMS,
			TailLines:    DefaultTailLines,
		},
		Progress: ProgressConfig{
			Marker:  DefaultMarker,
			Base:    DefaultProgressBase,
			Scale:   DefaultProgressScale,
			Ceiling: DefaultProgressCeiling,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// String renders the configuration as YAML.
func (c Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// GlobalPath returns ~/.config/railflash/config.json.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appDirName, configFileName), nil
}

// LocalPath returns <root>/.railflash/config.json.
func LocalPath(root string) string {
	return filepath.Join(root, localDirName, configFileName)
}

// Save writes the config to <root>/.railflash/config.json by default,
// or to the global config if global is true. It returns the written path.
func Save(cfg Config, root string, global bool) (string, error) {
	path := LocalPath(root)
	if global {
		p, err := GlobalPath()
		if err != nil {
			return "", err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
