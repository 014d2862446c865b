package artifacts

import (
	"strconv"
	"strings"
)

// parseVersion splits a version into its numeric components. A leading
// "v" is ignored and any segment that is not an integer counts as 0.
func parseVersion(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			n = 0
		}
		out[i] = n
	}
	return out
}

// CompareVersions orders a and b by numeric component, padding the
// shorter one with zeros. It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	pa, pb := parseVersion(a), parseVersion(b)
	for i := 0; i < max(len(pa), len(pb)); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// PickLatest returns the greatest version, keeping the first of equal
// ones. It returns "" for an empty list.
func PickLatest(versions []string) string {
	latest := ""
	for i, v := range versions {
		if i == 0 || CompareVersions(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}

// NextVersion increments the last component of latest. Without a latest
// version, or when its last component is not a number, numbering starts
// again at 1.0.0.
func NextVersion(latest string, ok bool) string {
	if !ok || latest == "" {
		return InitialVersion
	}
	parts := strings.Split(latest, ".")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return InitialVersion
	}
	parts[len(parts)-1] = strconv.Itoa(n + 1)
	return strings.Join(parts, ".")
}
