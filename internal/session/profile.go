package session

import (
	"path/filepath"
	"strings"
)

const profileDirPrefix = "jobhuntr_chrome_profile_"

// ProfileDirName derives a stable Chrome profile directory name from a user
// identity, usually an email address. Only the lowercased alphanumeric part
// before the @ survives; anything that sanitizes to nothing falls back to
// "default".
func ProfileDirName(identity string) string {
	local := identity
	if at := strings.IndexByte(identity, '@'); at >= 0 {
		local = identity[:at]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		name = "default"
	}
	return profileDirPrefix + name
}

// ProfileDir resolves the absolute profile directory under the base dir.
func ProfileDir(baseDir, identity string) string {
	return filepath.Join(baseDir, ProfileDirName(identity))
}
