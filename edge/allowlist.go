package edge

import "strings"

// AllowList holds the routes that bypass credential verification. Entries
// ending in "/" match every path below them; other entries match exactly.
type AllowList struct {
	exact    map[string]struct{}
	prefixes []string
}

func NewAllowList(paths ...string) AllowList {
	al := AllowList{exact: make(map[string]struct{})}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "/") {
			al.prefixes = append(al.prefixes, p)
			// "/auth/" also covers "/auth"
			al.exact[strings.TrimSuffix(p, "/")] = struct{}{}
			continue
		}
		al.exact[p] = struct{}{}
	}
	return al
}

func (al AllowList) Allows(path string) bool {
	if _, ok := al.exact[path]; ok {
		return true
	}
	for _, prefix := range al.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
