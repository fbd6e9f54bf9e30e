package flash

import (
	"fmt"
	"strconv"
)

// CommandParams are the esptool settings that do not depend on the device.
type CommandParams struct {
	Chip      string
	Baud      int
	FlashMode string
	FlashFreq string
	FlashSize string
}

// DefaultCommandParams matches an ESP32 dev board.
func DefaultCommandParams() CommandParams {
	return CommandParams{
		Chip:      "esp32",
		Baud:      921600,
		FlashMode: "dio",
		FlashFreq: "40m",
		FlashSize: "detect",
	}
}

// BuildCommand assembles the esptool invocation. The result depends only on
// its inputs.
func BuildCommand(tc Toolchain, port string, p CommandParams, set ArtifactSet) (string, []string) {
	name, args := tc.Command()
	args = append(args,
		"--chip", p.Chip,
		"--port", port,
		"--baud", strconv.Itoa(p.Baud),
		"--before", "default_reset",
		"--after", "hard_reset",
		"write_flash", "-z",
		"--flash_mode", p.FlashMode,
		"--flash_freq", p.FlashFreq,
		"--flash_size", p.FlashSize,
	)
	for _, img := range set.Images() {
		args = append(args, fmt.Sprintf("0x%x", img.Offset), img.Path)
	}
	return name, args
}
