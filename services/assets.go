package services

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
)

var (
	publicIDAttr  = regexp.MustCompile(`(?i)data-public-id\s*=\s*["']([^"']+)["']`)
	cloudinarySrc = regexp.MustCompile(`(?i)src\s*=\s*["'](https?://res\.cloudinary\.com/[^"']+)["']`)
	versionSeg    = regexp.MustCompile(`^v\d+$`)
)

// ExtractPublicIDs returns the hosted image identifiers referenced by an HTML body,
// de-duplicated and sorted. Identifiers come from data-public-id attributes and from
// Cloudinary delivery URLs in src attributes.
func ExtractPublicIDs(html string) []string {
	if html == "" {
		return []string{}
	}
	seen := map[string]struct{}{}
	for _, m := range publicIDAttr.FindAllStringSubmatch(html, -1) {
		if m[1] != "" {
			seen[m[1]] = struct{}{}
		}
	}
	for _, m := range cloudinarySrc.FindAllStringSubmatch(html, -1) {
		if id := publicIDFromURL(m[1]); id != "" {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// publicIDFromURL derives the public id from a delivery URL such as
// https://res.cloudinary.com/demo/image/upload/f_auto,q_auto/v1712/uploads/2024/05/abc.webp.
// Transformation segments precede the version segment; URLs without one yield "".
func publicIDFromURL(raw string) string {
	_, rest, ok := strings.Cut(raw, "/upload/")
	if !ok {
		return ""
	}
	rest, _, _ = strings.Cut(rest, "?")

	segs := strings.Split(rest, "/")
	start := -1
	for i, s := range segs {
		if versionSeg.MatchString(s) {
			start = i + 1
			break
		}
	}
	if start < 0 || start >= len(segs) {
		return ""
	}

	id := strings.Join(segs[start:], "/")
	if dec, err := url.PathUnescape(id); err == nil {
		id = dec
	}
	id = strings.TrimSuffix(id, path.Ext(id))
	return strings.Trim(id, "/")
}
