package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// ParseUID reads the uid of a package from pm list packages -U, falling back
// to the userId field of dumpsys package.
func ParseUID(text string) (int, bool) {
	m, ok := UID.Extract(text)
	if !ok {
		return 0, false
	}

	return int(m.Value), true
}

// NetUsage is the cumulative traffic attributed to one uid.
type NetUsage struct {
	RxBytes   float64
	TxBytes   float64
	RxPackets int
	TxPackets int
}

var (
	uidFieldRe    = regexp.MustCompile(`\buid=(-?\d+)`)
	bucketFieldRe = regexp.MustCompile(`\b(rb|rp|tb|tp)=(\d+)`)
)

// ParseNetstatsUID sums the history buckets that dumpsys netstats detail
// lists under the identity lines of uid.
func ParseNetstatsUID(text string, uid int) (NetUsage, bool) {
	var (
		out     NetUsage
		inScope bool
		found   bool
	)

	want := strconv.Itoa(uid)
	for _, line := range strings.Split(text, "\n") {
		if m := uidFieldRe.FindStringSubmatch(line); m != nil {
			inScope = m[1] == want
		}

		if !inScope {
			continue
		}

		for _, f := range bucketFieldRe.FindAllStringSubmatch(line, -1) {
			v, ok := atof(f[2])
			if !ok {
				continue
			}

			found = true
			switch f[1] {
			case "rb":
				out.RxBytes += v
			case "rp":
				out.RxPackets += int(v)
			case "tb":
				out.TxBytes += v
			case "tp":
				out.TxPackets += int(v)
			}
		}
	}

	return out, found
}

// ParseQtaguid sums the rows of /proc/net/xt_qtaguid/stats owned by uid.
func ParseQtaguid(text string, uid int) (NetUsage, bool) {
	var (
		out   NetUsage
		found bool
	)

	want := strconv.Itoa(uid)
	for _, line := range strings.Split(text, "\n") {
		parts := strings.Fields(line)
		if len(parts) < 9 || parts[3] != want {
			continue
		}

		rx, ok1 := atof(parts[5])
		rp, ok2 := atoi(parts[6])
		tx, ok3 := atof(parts[7])
		tp, ok4 := atoi(parts[8])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}

		out.RxBytes += rx
		out.RxPackets += rp
		out.TxBytes += tx
		out.TxPackets += tp
		found = true
	}

	return out, found
}

// ParseSocketTable counts the sockets owned by uid in a /proc/net/tcp or
// /proc/net/udp style table.
func ParseSocketTable(text string, uid int) (int, bool) {
	want := strconv.Itoa(uid)
	count := 0
	rows := 0
	for _, line := range strings.Split(text, "\n") {
		parts := strings.Fields(line)
		if len(parts) < 8 || parts[0] == "sl" {
			continue
		}

		rows++
		if parts[7] == want {
			count++
		}
	}

	return count, rows > 0
}

// ParsePackageUID reads the uid of pkg from pm list packages -U. The filter
// of that command matches substrings, so other packages are ignored.
func ParsePackageUID(text, pkg string) (int, bool) {
	for _, line := range strings.Split(text, "\n") {
		name, rest, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok || name != "package:"+pkg {
			continue
		}

		return ParseUID(rest)
	}

	return 0, false
}
