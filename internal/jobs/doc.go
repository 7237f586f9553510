// Package jobs turns the jobs section of the config file into scheduled jobs.
//
// Kinds are registered explicitly on a Registry (see NewBuiltinRegistry).
// A Syncer diffs each config against what it scheduled before and applies
// the smallest change: re-arm, toggle, replace or remove.
package jobs
