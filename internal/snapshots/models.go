package snapshots

import (
	"encoding/json"
	"time"

	"github.com/fleetsight/fleetsight/internal/inventory"
	"github.com/fleetsight/fleetsight/internal/sessions"
)

// Snapshot categories. Each device holds exactly one current snapshot per
// category; submissions overwrite, never append.
const CategoryApplications = "applications"

// Document is the single current-state record a device reports for the
// applications category. It is stored verbatim as the snapshot's JSONB body.
type Document struct {
	InstalledApplications []inventory.InstalledApplication `json:"installedApplications"`
	Usage                 UsageInfo                        `json:"usage"`
	CollectedAt           time.Time                        `json:"collectedAt"`
}

type UsageInfo struct {
	IsCaptureEnabled bool                    `json:"isCaptureEnabled"`
	CaptureMethod    string                  `json:"captureMethod,omitempty"`
	ActiveSessions   []sessions.UsageSession `json:"activeSessions"`
}

// Snapshot is one stored row: the document plus its storage envelope.
type Snapshot struct {
	ID          string
	DeviceID    string
	Category    string
	Document    Document
	PolicyHash  string
	CollectedAt time.Time
	UpdatedAt   time.Time
}

// Policy is a shared, content-addressed configuration record referenced by
// zero or more device snapshots. Owned by none; garbage collected by the
// maintenance engine once unreferenced.
type Policy struct {
	Hash    string          `json:"hash"`
	Payload json.RawMessage `json:"payload"`
}

// InstalledNames returns the set of application names present in the
// document's inventory.
func (d Document) InstalledNames() map[string]struct{} {
	names := make(map[string]struct{}, len(d.InstalledApplications))
	for _, app := range d.InstalledApplications {
		names[app.Name] = struct{}{}
	}
	return names
}

// ValidateSessions drops active sessions whose name is not in the document's
// own inventory, returning the number removed. Reconstruction already
// guarantees this; re-checking on the server guards against stale or tampered
// submissions.
func (d *Document) ValidateSessions() int {
	installed := d.InstalledNames()

	kept := d.Usage.ActiveSessions[:0]
	dropped := 0
	for _, s := range d.Usage.ActiveSessions {
		if _, ok := installed[s.Name]; ok {
			kept = append(kept, s)
		} else {
			dropped++
		}
	}
	d.Usage.ActiveSessions = kept
	return dropped
}
