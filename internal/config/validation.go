package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	allowedLogLevels  = []string{"debug", "info", "warn", "error"}
	allowedLogFormats = []string{"text", "json"}
)

// Validate reports every invalid value at once.
func (c Config) Validate() error {
	var errs []error

	if c.Serial.ProbeBaud <= 0 {
		errs = append(errs, fmt.Errorf("serial.probe-baud must be > 0, got: %d", c.Serial.ProbeBaud))
	}
	if c.Serial.MonitorBaud <= 0 {
		errs = append(errs, fmt.Errorf("serial.monitor-baud must be > 0, got: %d", c.Serial.MonitorBaud))
	}
	for _, d := range []struct {
		key string
		ms  int
	}{
		{"serial.probe-hold-ms", c.Serial.ProbeHoldMS},
		{"serial.startup-delay-ms", c.Serial.StartupDelayMS},
		{"flash.settle-ms", c.Flash.SettleMS},
	} {
		if d.ms < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got: %d", d.key, d.ms))
		}
	}

	if c.Flash.Baud <= 0 {
		errs = append(errs, fmt.Errorf("flash.baud must be > 0, got: %d", c.Flash.Baud))
	}
	if strings.TrimSpace(c.Flash.Chip) == "" {
		errs = append(errs, errors.New("flash.chip must not be empty"))
	}
	if strings.TrimSpace(c.Flash.ArtifactsDir) == "" {
		errs = append(errs, errors.New("flash.artifacts-dir must not be empty"))
	}
	if c.Flash.TailLines < 1 {
		errs = append(errs, fmt.Errorf("flash.tail-lines must be >= 1, got: %d", c.Flash.TailLines))
	}

	p := c.Progress
	if p.Marker == "" {
		errs = append(errs, errors.New("progress.marker must not be empty"))
	}
	if p.Scale <= 0 {
		errs = append(errs, fmt.Errorf("progress.scale must be > 0, got: %g", p.Scale))
	}
	if p.Base < 0 || p.Base >= 100 {
		errs = append(errs, fmt.Errorf("progress.base must be in [0,100), got: %d", p.Base))
	}
	if p.Ceiling <= p.Base || p.Ceiling >= 100 {
		errs = append(errs, fmt.Errorf("progress.ceiling must be in (base,100), got: %d", p.Ceiling))
	}

	if !slices.Contains(allowedLogLevels, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, fmt.Errorf("logging.level must be one of %v, got: %q", allowedLogLevels, c.Logging.Level))
	}
	if !slices.Contains(allowedLogFormats, strings.ToLower(c.Logging.Format)) {
		errs = append(errs, fmt.Errorf("logging.format must be one of %v, got: %q", allowedLogFormats, c.Logging.Format))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}
