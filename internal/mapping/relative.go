package mapping

import (
	"net/url"
	"path"
	"strings"
)

// Relative returns the slash path that reaches target from the directory
// containing fromFile. Both arguments are tree-relative.
func Relative(fromFile, target string) string {
	dir := path.Dir(strings.TrimPrefix(fromFile, "/"))
	var dirSegs []string
	if dir != "." && dir != "" {
		dirSegs = strings.Split(dir, "/")
	}
	targetSegs := strings.Split(strings.TrimPrefix(target, "/"), "/")
	targetDirs := targetSegs[:len(targetSegs)-1]

	common := 0
	for common < len(dirSegs) && common < len(targetDirs) && dirSegs[common] == targetDirs[common] {
		common++
	}
	parts := make([]string, 0, len(dirSegs)-common+len(targetSegs)-common)
	for i := common; i < len(dirSegs); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, targetSegs[common:]...)
	return strings.Join(parts, "/")
}

// EscapePath percent-escapes a relative slash path for use inside an
// attribute or url() token.
func EscapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

// Origin inverts the mapping for paths that carry no query digest:
// "_ext/<host>/p" becomes scheme://host/p and anything else is placed on
// primaryHost.
func Origin(localPath, primaryHost, scheme string) *url.URL {
	p := strings.TrimPrefix(localPath, "/")
	host := primaryHost
	if rest, ok := strings.CutPrefix(p, ExternalDir+"/"); ok {
		h, tail, _ := strings.Cut(rest, "/")
		host, p = h, tail
	}
	u := &url.URL{Scheme: scheme, Host: strings.ToLower(host)}
	u.Path, u.RawPath = originPath(p)
	return u
}

// originPath undoes the segment escaping of LocalPath. An encoded slash is
// kept in the raw path so the URL still has one segment there.
func originPath(p string) (string, string) {
	segs := strings.Split(p, "/")
	decoded := make([]string, len(segs))
	raw := make([]string, len(segs))
	for i, seg := range segs {
		name, err := url.PathUnescape(seg)
		switch {
		case seg == emptySegment:
			name = ""
		case err != nil:
			name = seg
		}
		decoded[i] = name
		raw[i] = url.PathEscape(name)
	}
	return "/" + strings.Join(decoded, "/"), "/" + strings.Join(raw, "/")
}

// HasQueryDigest reports whether the file name in p carries a ".q<digest>"
// marker produced by LocalPath.
func HasQueryDigest(p string) bool {
	name := p[strings.LastIndex(p, "/")+1:]
	for {
		i := strings.Index(name, ".q")
		if i < 0 {
			return false
		}
		rest := name[i+2:]
		if len(rest) >= digestLen && isHex(rest[:digestLen]) && (len(rest) == digestLen || rest[digestLen] == '.') {
			return true
		}
		name = rest
	}
}

func isHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
