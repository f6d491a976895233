package sessions

import (
	"strings"

	"github.com/fleetsight/fleetsight/internal/inventory"
)

// Matcher resolves process paths to installed applications using a ranked rule
// list: install-location path prefix first, then platform-identifier
// containment for helper processes running outside the install root. Ties on
// the prefix rule break on the longest install location.
type Matcher struct {
	apps []inventory.InstalledApplication
}

func NewMatcher(apps []inventory.InstalledApplication) *Matcher {
	return &Matcher{apps: apps}
}

// Match returns the installed application owning the given process path, or
// false when no rule claims it.
func (m *Matcher) Match(path string) (inventory.InstalledApplication, bool) {
	var best inventory.InstalledApplication
	bestLen := -1

	for _, app := range m.apps {
		loc := app.InstallLocation
		if loc == "" || !pathHasPrefix(path, loc) {
			continue
		}
		if len(loc) > bestLen {
			best = app
			bestLen = len(loc)
		}
	}
	if bestLen >= 0 {
		return best, true
	}

	for _, app := range m.apps {
		if app.PlatformIdentifier == "" {
			continue
		}
		if strings.Contains(path, app.PlatformIdentifier) {
			return app, true
		}
	}

	return inventory.InstalledApplication{}, false
}

// pathHasPrefix reports whether path lives under root, matching on path
// component boundaries so "/Applications/Docker.app" never claims
// "/Applications/Docker.app.backup/bin/x".
func pathHasPrefix(path, root string) bool {
	root = strings.TrimSuffix(root, "/")
	if !strings.HasPrefix(path, root) {
		return false
	}
	return len(path) == len(root) || path[len(root)] == '/'
}

// NormalizeUser strips a domain or realm qualifier from an account name,
// keeping the local account name with its original casing. Handles
// "DOMAIN\\user", "DOMAIN/user" and "user@realm" forms.
func NormalizeUser(user string) string {
	if i := strings.LastIndexByte(user, '\\'); i >= 0 {
		user = user[i+1:]
	}
	if i := strings.LastIndexByte(user, '/'); i >= 0 {
		user = user[i+1:]
	}
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	return user
}
