package rewrite

import (
	"fmt"
	"strings"
)

// Mode selects what a run rewrites.
type Mode string

// Modes. Offline is the default.
const (
	// ModeLinks localizes same-site hrefs only, pages and files alike.
	ModeLinks Mode = "links"
	// ModeOffline localizes same-site hrefs and media, leaving other
	// stylesheets and scripts on their origin.
	ModeOffline Mode = "offline"
	// ModeLocalize also localizes stylesheets, scripts and @import.
	ModeLocalize Mode = "localize"
	// ModeRestore points localized cross-origin stylesheets and scripts back
	// at their origin.
	ModeRestore Mode = "restore"
)

// Modes lists every valid mode.
var Modes = []Mode{ModeLinks, ModeOffline, ModeLocalize, ModeRestore}

// ParseMode parses a mode name; empty selects ModeOffline.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeOffline, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown rewrite mode %q", s)
}

// rewritesHTML reports whether the HTML localization pass runs.
func (m Mode) rewritesHTML() bool {
	return m != ModeRestore
}

// rewritesMedia reports whether non-code assets are localized.
func (m Mode) rewritesMedia() bool {
	return m == ModeOffline || m == ModeLocalize
}

// rewritesCode reports whether stylesheets and scripts are localized.
func (m Mode) rewritesCode() bool {
	return m == ModeLocalize
}

// rewritesCSS reports whether stylesheets are scanned.
func (m Mode) rewritesCSS() bool {
	return m.rewritesMedia()
}
