package mapping

import (
	"fmt"
	"net/url"
	"strings"
)

// emptySegment names the file or directory for an empty path segment, as in
// "/a//b". A literal "%" in a segment is always escaped, so it cannot clash.
const emptySegment = "%"

// segmentEscaper keeps a decoded segment inside one file name: an encoded
// slash stays "%2F" and a literal percent becomes "%25".
var segmentEscaper = strings.NewReplacer("%", "%25", "/", "%2F")

// ExternalDir is the top-level directory that isolates cross-origin content.
const ExternalDir = "_ext"

// Mapper turns URLs into tree-relative file paths.
type Mapper struct {
	Hosts    HostSet
	Tracking TrackingParams
}

// NewMapper returns a Mapper for the given site hosts. A nil tracking list
// selects DefaultTrackingParams.
func NewMapper(hosts HostSet, tracking TrackingParams) Mapper {
	if tracking == nil {
		tracking = DefaultTrackingParams
	}
	return Mapper{Hosts: hosts, Tracking: tracking}
}

// LocalPath maps rawURL to a slash-separated path relative to the mirror
// root. htmlHint adds ".html" to extension-less paths; assets without an
// extension are stored verbatim. The only error is a parse failure.
func (m Mapper) LocalPath(rawURL string, htmlHint bool) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	return m.LocalPathURL(u, htmlHint), nil
}

// LocalPathURL is LocalPath for a parsed URL.
func (m Mapper) LocalPathURL(u *url.URL, htmlHint bool) string {
	host := Host(u)
	p := filePath(u)
	if p == "/" {
		p = "/index.html"
	}
	if strings.HasSuffix(p, "/") {
		p += "index.html"
	}
	if _, ext := splitExt(p); ext == "" && htmlHint {
		p += ".html"
	}
	if u.RawQuery != "" {
		p = m.spliceQuery(p, u.RawQuery)
	}
	p = strings.TrimLeft(p, "/")
	if host != "" && !m.Hosts.Contains(host) {
		p = ExternalDir + "/" + host + "/" + p
	}
	return p
}

// IsExternal reports whether u lives outside the site hosts.
func (m Mapper) IsExternal(u *url.URL) bool {
	host := Host(u)
	return host != "" && !m.Hosts.Contains(host)
}

// filePath rebuilds the path of u from its escaped segments. Dot segments
// are resolved and never climb above the root.
func filePath(u *url.URL) string {
	segs := strings.Split(u.EscapedPath(), "/")
	out := make([]string, 0, len(segs))
	for i, seg := range segs {
		if i == 0 && seg == "" {
			continue
		}
		last := i == len(segs)-1
		name, err := url.PathUnescape(seg)
		if err != nil {
			name = seg
		}
		switch {
		case name == "." || name == "..":
			if name == ".." && len(out) > 0 {
				out = out[:len(out)-1]
			}
			if last {
				out = append(out, "")
			}
		case name == "" && last:
			out = append(out, "")
		case name == "":
			out = append(out, emptySegment)
		default:
			out = append(out, segmentEscaper.Replace(name))
		}
	}
	return "/" + strings.Join(out, "/")
}

func (m Mapper) spliceQuery(p, rawQuery string) string {
	if len(m.Tracking.Filter(rawQuery)) == 0 {
		return p
	}
	digest := QueryDigest(rawQuery)
	base, ext := splitExt(p)
	if ext == "" {
		return p + ".q" + digest + ".html"
	}
	return base + ".q" + digest + ext
}

// splitExt splits the extension off the last segment of p. A name made only
// of leading dots plus text (".well-known") has no extension.
func splitExt(p string) (string, string) {
	name := p[strings.LastIndex(p, "/")+1:]
	dot := strings.LastIndex(name, ".")
	if dot <= 0 || strings.TrimLeft(name[:dot], ".") == "" {
		return p, ""
	}
	cut := len(p) - len(name) + dot
	return p[:cut], p[cut:]
}
