// Package mapping canonicalizes URLs and maps them onto paths inside a
// mirrored tree. Every function here is pure: the same inputs always produce
// the same output, which keeps repeated rewrite passes idempotent.
package mapping
