// Package urlnorm reduces request URLs to a canonical grouping key so that
// runs of the same logical endpoint can be compared with each other.
package urlnorm

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Normalizer maps a raw request URL to its canonical form. Implementations
// must be deterministic and pure.
type Normalizer func(raw string) string

// ProfileParam is the query parameter used to toggle profiling; it never
// contributes to the canonical form.
const ProfileParam = "_profile"

var (
	numericSegment = regexp.MustCompile(`^[0-9]+$`)
	uuidSegment    = regexp.MustCompile(
		`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`,
	)
	hashSegment = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
)

// Canonical is the default Normalizer:
//
//   - scheme and host are kept, lower-cased;
//   - numeric path segments become "{id}", UUID and long hex segments
//     become "{hash}";
//   - query values are dropped, the remaining parameter names are sorted
//     and de-duplicated, and the profiling toggle is removed;
//   - fragments are dropped.
//
// CLI invocations (anything that does not parse as a URL with a path) are
// returned trimmed and otherwise unchanged.
func Canonical(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Path == "" && u.Host == "") || strings.ContainsAny(u.Path, " ") {
		return raw
	}

	var sb strings.Builder

	if u.Scheme != "" && u.Host != "" {
		sb.WriteString(strings.ToLower(u.Scheme))
		sb.WriteString("://")
		sb.WriteString(strings.ToLower(u.Host))
	}

	sb.WriteString(canonicalPath(u.Path))

	if names := queryNames(u.RawQuery); len(names) > 0 {
		sb.WriteByte('?')
		sb.WriteString(strings.Join(names, "&"))
	}

	return sb.String()
}

func canonicalPath(p string) string {
	if p == "" {
		return "/"
	}

	segments := strings.Split(p, "/")

	for i, seg := range segments {
		switch {
		case seg == "":
		case numericSegment.MatchString(seg):
			segments[i] = "{id}"
		case uuidSegment.MatchString(seg), hashSegment.MatchString(seg):
			segments[i] = "{hash}"
		}
	}

	return strings.Join(segments, "/")
}

func queryNames(rawQuery string) []string {
	if rawQuery == "" {
		return nil
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil && len(values) == 0 {
		return nil
	}

	names := make([]string, 0, len(values))

	for name := range values {
		if name == "" || name == ProfileParam {
			continue
		}

		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
