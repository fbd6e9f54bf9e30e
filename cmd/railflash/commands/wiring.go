package commands

import (
	"time"

	"github.com/buckleypaul/railflash/internal/config"
	"github.com/buckleypaul/railflash/internal/flash"
	"github.com/buckleypaul/railflash/internal/logger"
	"github.com/buckleypaul/railflash/internal/report"
	"github.com/buckleypaul/railflash/internal/serial"
)

// Appended to every scanner and orchestrator; tests use them to replace
// the serial bus and the esptool process.
var (
	scannerHooks []serial.ScannerOption
	flashHooks   []flash.Option
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// newScanner builds the device scanner from cfg.
func newScanner(cfg config.Config, rep report.Reporter, log *logger.Logger) *serial.Scanner {
	opts := []serial.ScannerOption{
		serial.WithProbeBaud(cfg.Serial.ProbeBaud),
		serial.WithHold(ms(cfg.Serial.ProbeHoldMS)),
		serial.WithStartupDelay(ms(cfg.Serial.StartupDelayMS)),
		serial.WithPinnedPort(cfg.Serial.Port),
		serial.WithReporter(rep),
		serial.WithLogger(log),
	}
	return serial.NewScanner(append(opts, scannerHooks...)...)
}

// flashOptions maps cfg onto orchestrator options.
func flashOptions(cfg config.Config) flash.Options {
	return flash.Options{
		ArtifactsDir: cfg.Flash.ArtifactsDir,
		ToolPath:     cfg.Flash.Tool,
		Interpreter:  cfg.Flash.Interpreter,
		Command: flash.CommandParams{
			Chip:      cfg.Flash.Chip,
			Baud:      cfg.Flash.Baud,
			FlashMode: cfg.Flash.Mode,
			FlashFreq: cfg.Flash.Freq,
			FlashSize: cfg.Flash.Size,
		},
		Progress: flash.Estimator{
			Marker:  cfg.Progress.Marker,
			Base:    cfg.Progress.Base,
			Scale:   cfg.Progress.Scale,
			Ceiling: cfg.Progress.Ceiling,
		},
		TailLines: cfg.Flash.TailLines,
		Settle:    ms(cfg.Flash.SettleMS),
	}
}

// newOrchestrator builds the flash orchestrator from cfg.
func newOrchestrator(cfg config.Config, rep report.Reporter, log *logger.Logger) *flash.Orchestrator {
	opts := []flash.Option{
		flash.WithReporter(rep),
		flash.WithLogger(log),
	}
	return flash.New(flashOptions(cfg), append(opts, flashHooks...)...)
}
