package mapping

import (
	"crypto/sha1" // #nosec G505 -- used for short stable file names, not security.
	"encoding/hex"
	"strings"
)

// TrackingParams lists query-key prefixes that are dropped before a query is
// considered meaningful. Matching is by prefix on the lowercased raw key, so
// "ref" also removes "referrer" and "v" removes "view".
type TrackingParams []string

// DefaultTrackingParams is the stock prefix list.
var DefaultTrackingParams = TrackingParams{
	"utm_",
	"gclid",
	"fbclid",
	"mc_cid",
	"mc_eid",
	"ref",
	"ref_src",
	"_",
	"v",
}

// digestLen is the number of hex characters spliced into file names.
const digestLen = 8

// IsTracking reports whether key matches one of the prefixes.
func (t TrackingParams) IsTracking(key string) bool {
	key = strings.ToLower(key)
	for _, prefix := range t {
		if prefix != "" && strings.HasPrefix(key, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// Filter returns the raw key=value pairs of rawQuery that survive tracking
// removal, in their original order. Empty pairs are skipped.
func (t TrackingParams) Filter(rawQuery string) []string {
	if rawQuery == "" {
		return nil
	}
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if t.IsTracking(key) {
			continue
		}
		kept = append(kept, pair)
	}
	return kept
}

// QueryDigest returns the short digest used to tell query variants apart. It
// always hashes the unfiltered query so that distinct originals never share a
// file.
func QueryDigest(rawQuery string) string {
	sum := sha1.Sum([]byte(rawQuery)) // #nosec G401 -- naming only.
	return hex.EncodeToString(sum[:])[:digestLen]
}
