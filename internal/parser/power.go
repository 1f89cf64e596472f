package parser

import (
	"regexp"
	"strings"
)

// PowerReading is what batterystats reveals about one package.
type PowerReading struct {
	Usage      *float64
	Rule       string
	Subsystems map[string]float64
	Wakelocks  *int
	Alarms     *int
}

// Empty reports whether nothing at all was found.
func (p PowerReading) Empty() bool {
	return p.Usage == nil && len(p.Subsystems) == 0 && p.Wakelocks == nil && p.Alarms == nil
}

// ParsePower reads dumpsys batterystats output scoped to one package.
func ParsePower(text string) PowerReading {
	var out PowerReading
	if strings.TrimSpace(text) == "" {
		return out
	}

	if m, ok := PowerConsumption.Extract(text); ok {
		out.Usage = &m.Value
		out.Rule = m.Rule
	}

	for _, s := range PowerSubsystems {
		m, ok := s.Chain.Extract(text)
		if !ok {
			continue
		}

		if out.Subsystems == nil {
			out.Subsystems = make(map[string]float64)
		}

		out.Subsystems[s.Field] = m.Value
	}

	if m, ok := Wakelocks.Extract(text); ok {
		v := int(m.Value)
		out.Wakelocks = &v
	}

	if m, ok := Alarms.Extract(text); ok {
		v := int(m.Value)
		out.Alarms = &v
	}

	return out
}

// PackageSection returns the block of general batterystats output that
// belongs to pkg: the first line mentioning it and every following line up to
// the next unindented line.
func PackageSection(text, pkg string) string {
	var (
		section []string
		inside  bool
	)

	for _, line := range strings.Split(text, "\n") {
		if !inside {
			if strings.Contains(line, pkg) {
				inside = true
				section = append(section, line)
			}

			continue
		}

		if strings.TrimSpace(line) != "" && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			break
		}

		section = append(section, line)
	}

	return strings.Join(section, "\n")
}

// IsForeground decides whether pkg owns the top activity, using dumpsys
// activity activities first and the focused window from dumpsys window
// windows second. The second result is false when neither source is usable.
func IsForeground(activities, windows, pkg string) (bool, bool) {
	if activities != "" {
		for _, line := range strings.Split(activities, "\n") {
			if strings.Contains(line, "* Hist #0:") || strings.Contains(line, "mResumedActivity") ||
				strings.Contains(line, "topResumedActivity") {
				if strings.Contains(line, pkg+"/") || strings.Contains(line, pkg+" ") {
					return true, true
				}
			}
		}
	}

	if windows != "" {
		re, err := regexp.Compile(`mCurrentFocus=.*?\{.*?` + regexp.QuoteMeta(pkg) + `[/}\s]`)
		if err == nil && re.MatchString(windows) {
			return true, true
		}

		if strings.Contains(windows, "mCurrentFocus") {
			return false, true
		}
	}

	if activities != "" {
		return false, true
	}

	return false, false
}
