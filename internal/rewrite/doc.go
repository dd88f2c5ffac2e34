// Package rewrite post-processes a mirrored tree so it can be browsed from
// disk. Each run applies exactly one Mode, and rewriting is idempotent: the
// values it emits are tree-relative paths or absolute origin URLs, which a
// second pass in the same mode leaves alone.
package rewrite
