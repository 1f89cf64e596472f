package parser

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	wmSizeRe    = regexp.MustCompile(`(\d+)x(\d+)`)
	wmDensityRe = regexp.MustCompile(`(\d+)`)
)

// ParseWMSize reads `wm size`. An override size is ignored in favour of the
// physical size.
func ParseWMSize(text string) (width, height int, ok bool) {
	line := preferredLine(text, "Physical size:")

	m := wmSizeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}

	w, ok1 := atoi(m[1])
	h, ok2 := atoi(m[2])

	return w, h, ok1 && ok2
}

// ParseWMDensity reads `wm density`.
func ParseWMDensity(text string) (int, bool) {
	line := preferredLine(text, "Physical density:")

	m := wmDensityRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	return atoi(m[1])
}

func preferredLine(text, prefix string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			return line
		}
	}

	return text
}

// ParsePackages reads `pm list packages` output into package names.
func ParsePackages(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		name, ok := strings.CutPrefix(strings.TrimSpace(line), "package:")
		if !ok {
			continue
		}

		// -U appends " uid:<n>"
		name, _, _ = strings.Cut(name, " ")
		if name != "" {
			out = append(out, name)
		}
	}

	return out
}

var hiddenPrefixes = []string{
	"com.android.providers",
	"com.android.server",
	"com.android.systemui",
	"com.android.shell",
	"com.android.bluetooth",
	"com.android.nfc",
	"com.android.carrierconfig",
	"com.android.cts",
	"com.android.inputmethod",
	"com.android.keychain",
	"com.android.location",
	"com.android.externalstorage",
	"com.android.documentsui",
	"com.android.onetimeinitializer",
	"com.android.proxyhandler",
	"com.android.defcontainer",
	"com.android.backupconfirm",
	"com.android.sharedstoragebackup",
}

// IsHiddenPackage reports whether a package is plumbing that is not worth
// offering for monitoring.
func IsHiddenPackage(pkg string) bool {
	if strings.HasSuffix(pkg, ".test") || strings.HasPrefix(pkg, "android.") {
		return true
	}

	for _, p := range hiddenPrefixes {
		if strings.HasPrefix(pkg, p) {
			return true
		}
	}

	return false
}

// DisplayName derives a human-readable name from a package name:
// com.spotify.music becomes "Spotify" and com.google.android.youtube becomes
// "Youtube".
func DisplayName(pkg string) string {
	parts := strings.Split(pkg, ".")

	name := pkg
	if len(parts) > 2 && parts[0] == "com" {
		if len(parts) > 3 {
			name = parts[len(parts)-1]
		} else {
			name = parts[1]
		}
	} else if len(parts) > 1 {
		name = parts[len(parts)-1]
	}

	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}

	return strings.Join(words, " ")
}
