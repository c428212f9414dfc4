// Package update checks a release manifest and replaces the running binary.
package update

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/rbright/showdialog/internal/datafile"
)

// Manifest describes the newest published release.
type Manifest struct {
	Version string `json:"version" yaml:"version"`
}

// Check is the outcome of comparing the running version to a manifest.
type Check struct {
	Needed bool
	// Target is nil when no manifest was consulted.
	Target        *semver.Version
	ManifestFound bool
}

// ReadManifest loads a manifest file, YAML unless the extension says JSON.
func ReadManifest(path string) (Manifest, error) {
	fileType, err := datafile.Resolve(path, datafile.Auto)
	if err != nil {
		fileType = datafile.YAML
	}
	manifest, err := datafile.Load[Manifest](path, fileType)
	if err != nil {
		return Manifest{}, err
	}
	if strings.TrimSpace(manifest.Version) == "" {
		return Manifest{}, fmt.Errorf("manifest %s: missing version", path)
	}
	return manifest, nil
}

// CheckManifest compares current against the manifest at manifestPath. An
// empty path or a missing file means no update.
func CheckManifest(current *semver.Version, manifestPath string) (Check, error) {
	if strings.TrimSpace(manifestPath) == "" {
		return Check{}, nil
	}
	if current == nil {
		return Check{}, errors.New("current version is not set")
	}

	manifest, err := ReadManifest(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Check{ManifestFound: false}, nil
		}
		return Check{}, err
	}

	target, err := semver.NewVersion(manifest.Version)
	if err != nil {
		return Check{}, fmt.Errorf("manifest %s: parse version %q: %w", manifestPath, manifest.Version, err)
	}

	return Check{
		Needed:        current.LessThan(target),
		Target:        target,
		ManifestFound: true,
	}, nil
}
