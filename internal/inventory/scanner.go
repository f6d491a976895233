package inventory

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner builds the device's installed-application inventory by walking a set
// of application roots. Each first-level directory entry under a root is one
// application; a fleetsight metadata file inside the directory, when present,
// overrides the values derived from the filesystem.
type Scanner struct {
	roots []string
}

// metadataFile is dropped by installers that want to publish a version,
// publisher or platform identifier alongside the application directory.
const metadataFile = ".fleetsight-app.json"

type appMetadata struct {
	Name               string `json:"name"`
	Version            string `json:"version"`
	Publisher          string `json:"publisher"`
	PlatformIdentifier string `json:"platformIdentifier"`
}

func NewScanner(roots []string) *Scanner {
	return &Scanner{roots: roots}
}

// Scan returns the current inventory. Unreadable roots are skipped with a
// warning so a missing optional root never fails the collection cycle.
func (s *Scanner) Scan() []InstalledApplication {
	var apps []InstalledApplication
	seen := make(map[string]struct{})

	for _, root := range s.roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			slog.Warn("Skipping unreadable application root", "root", root, "error", err)
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}

			app := s.scanEntry(root, entry.Name())
			if _, dup := seen[app.Name]; dup {
				continue
			}
			seen[app.Name] = struct{}{}
			apps = append(apps, app)
		}
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps
}

func (s *Scanner) scanEntry(root, dir string) InstalledApplication {
	location := filepath.Join(root, dir)

	app := InstalledApplication{
		Name:            displayName(dir),
		InstallLocation: location,
	}

	if info, err := os.Stat(location); err == nil {
		mtime := info.ModTime().UTC()
		app.InstallDate = &mtime
	}

	if raw, err := os.ReadFile(filepath.Join(location, metadataFile)); err == nil {
		var meta appMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			slog.Warn("Malformed application metadata", "path", location, "error", err)
		} else {
			if meta.Name != "" {
				app.Name = meta.Name
			}
			app.Version = meta.Version
			app.Publisher = meta.Publisher
			app.PlatformIdentifier = meta.PlatformIdentifier
		}
	}

	return app
}

// displayName strips macOS-style bundle suffixes from a directory name.
func displayName(dir string) string {
	return strings.TrimSuffix(dir, ".app")
}
