package inventory

import "time"

// InstalledApplication is one entry of a device's installed-software inventory.
// Identity within a device is the Name; the inventory is replaced wholesale on
// every collection cycle, so there is no per-application history.
type InstalledApplication struct {
	Name string `json:"name"`

	Version   string `json:"version,omitempty"`
	Publisher string `json:"publisher,omitempty"`

	// InstallLocation is the root path under which the application's
	// executables live. Used for path-prefix matching of process events.
	InstallLocation string `json:"installLocation,omitempty"`

	InstallDate *time.Time `json:"installDate,omitempty"`

	// PlatformIdentifier is a secondary key (bundle ID, package name) used to
	// claim helper processes running outside the install root.
	PlatformIdentifier string `json:"platformIdentifier,omitempty"`
}
