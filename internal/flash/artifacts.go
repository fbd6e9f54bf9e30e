package flash

import (
	"fmt"
	"os"
	"path/filepath"
)

// Image file names inside the artifacts directory.
const (
	BootloaderFile  = "bootloader.bin"
	PartitionsFile  = "partitions.bin"
	ApplicationFile = "firmware.bin"
)

// Flash offsets for each image.
const (
	BootloaderOffset  uint32 = 0x1000
	PartitionsOffset  uint32 = 0x8000
	ApplicationOffset uint32 = 0x10000
)

// Artifact is an optional image: either Present with a path or Absent.
type Artifact struct {
	path    string
	present bool
}

func Present(path string) Artifact { return Artifact{path: path, present: true} }
func Absent() Artifact             { return Artifact{} }

// Path returns the image path and whether the artifact is present.
func (a Artifact) Path() (string, bool) { return a.path, a.present }

func (a Artifact) String() string {
	if !a.present {
		return "absent"
	}
	return a.path
}

// ArtifactSet is everything written in one session.
type ArtifactSet struct {
	Application string
	Bootloader  Artifact
	Partitions  Artifact
}

// Image is one (offset, path) pair on the esptool command line.
type Image struct {
	Offset uint32
	Path   string
}

// Images returns the images to write in flash order: bootloader,
// partition table, application. Absent artifacts are left out.
func (s ArtifactSet) Images() []Image {
	slots := []struct {
		offset   uint32
		artifact Artifact
	}{
		{BootloaderOffset, s.Bootloader},
		{PartitionsOffset, s.Partitions},
		{ApplicationOffset, Present(s.Application)},
	}

	var images []Image
	for _, slot := range slots {
		if path, ok := slot.artifact.Path(); ok {
			images = append(images, Image{Offset: slot.offset, Path: path})
		}
	}
	return images
}

// ResolveArtifacts looks up the images in dir. Only the application image
// is required.
func ResolveArtifacts(dir string) (ArtifactSet, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ArtifactSet{}, fmt.Errorf("resolve artifacts dir: %w", err)
	}

	app := filepath.Join(abs, ApplicationFile)
	if !isFile(app) {
		return ArtifactSet{}, &MissingArtifactError{Path: app}
	}

	return ArtifactSet{
		Application: app,
		Bootloader:  optional(filepath.Join(abs, BootloaderFile)),
		Partitions:  optional(filepath.Join(abs, PartitionsFile)),
	}, nil
}

// AnchorDir resolves dir against base unless it is already absolute.
func AnchorDir(dir, base string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(base, dir)
}

// ExecutableDir returns the directory of the running binary.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func optional(path string) Artifact {
	if isFile(path) {
		return Present(path)
	}
	return Absent()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
