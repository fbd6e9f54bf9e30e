package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ConfigFile, when set, replaces the global/local lookup and must exist.
	ConfigFile string
	// Root is the directory holding the local .railflash/config.json.
	// Empty means the current directory.
	Root  string
	Flags *pflag.FlagSet
}

// LoadResult is the merged configuration plus the files that fed it.
type LoadResult struct {
	Config      Config
	FilesMerged []string
}

// flagBindings maps CLI flag names to config keys.
var flagBindings = map[string]string{
	"port":        "serial.port",
	"artifacts":   "flash.artifacts-dir",
	"tool":        "flash.tool",
	"interpreter": "flash.interpreter",
	"log-level":   "logging.level",
	"log-file":    "logging.file",
}

// Load merges defaults → global file → local file → env → flags.
func Load(opts LoadOptions) (LoadResult, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	replacer := strings.NewReplacer(".", "_", "-", "_")
	v.SetEnvKeyReplacer(replacer)
	v.SetEnvPrefix("RAILFLASH")
	v.AutomaticEnv()

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return LoadResult{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	files, err := candidateFiles(opts)
	if err != nil {
		return LoadResult{}, err
	}

	var merged []string
	for _, path := range files {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return LoadResult{}, fmt.Errorf("read config %s: %w", path, err)
		}
		merged = append(merged, path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return LoadResult{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return LoadResult{Config: cfg, FilesMerged: merged}, err
	}
	return LoadResult{Config: cfg, FilesMerged: merged}, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagBindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("serial.port", d.Serial.Port)
	v.SetDefault("serial.probe-baud", d.Serial.ProbeBaud)
	v.SetDefault("serial.probe-hold-ms", d.Serial.ProbeHoldMS)
	v.SetDefault("serial.startup-delay-ms", d.Serial.StartupDelayMS)
	v.SetDefault("serial.monitor-baud", d.Serial.MonitorBaud)

	v.SetDefault("flash.artifacts-dir", d.Flash.ArtifactsDir)
	v.SetDefault("flash.tool", d.Flash.Tool)
	v.SetDefault("flash.interpreter", d.Flash.Interpreter)
	v.SetDefault("flash.chip", d.Flash.Chip)
	v.SetDefault("flash.baud", d.Flash.Baud)
	v.SetDefault("flash.mode", d.Flash.Mode)
	v.SetDefault("flash.freq", d.Flash.Freq)
	v.SetDefault("flash.size", d.Flash.Size)
	v.SetDefault("flash.settle-ms", d.Flash.SettleMS)
	v.SetDefault("flash.tail-lines", d.Flash.TailLines)

	v.SetDefault("progress.marker", d.Progress.Marker)
	v.SetDefault("progress.base", d.Progress.Base)
	v.SetDefault("progress.scale", d.Progress.Scale)
	v.SetDefault("progress.ceiling", d.Progress.Ceiling)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
}

func candidateFiles(opts LoadOptions) ([]string, error) {
	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", opts.ConfigFile)
			}
			return nil, fmt.Errorf("config file error: %w", err)
		}
		return []string{opts.ConfigFile}, nil
	}

	var candidates []string
	if global, err := GlobalPath(); err == nil {
		candidates = append(candidates, global)
	}
	root := opts.Root
	if root == "" {
		root = "."
	}
	candidates = append(candidates, LocalPath(root))

	var files []string
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, c)
	}
	return files, nil
}
