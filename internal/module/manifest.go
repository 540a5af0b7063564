package module

import (
	"encoding/json/v2"
	"os"
	"path/filepath"

	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
)

// ManifestFile is the package manifest read from every module root.
const ManifestFile = "package.json"

// ManifestKey is the manifest field holding a module's own watch settings.
const ManifestKey = "watch-module"

// Manifest is the subset of a package manifest watch-module understands.
type Manifest struct {
	WatchModule *Settings `json:"watch-module,omitempty"`
	Name        string    `json:"name"`
}

// ReadManifest reads and parses the manifest in dir.
// Any failure, including a manifest without a name, is a manifest error.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(path) //#nosec G304 -- module paths come from the user
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeManifest, "read %s", path)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeManifest, "parse %s", path)
	}

	if m.Name == "" {
		return nil, domainerrors.Manifestf("%s has no name", path)
	}

	return &m, nil
}
