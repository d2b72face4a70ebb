// Package metadata resolves season and episode numbers for recordings.
//
// Resolver wraps the TVDB client with the matching rules (exact, then case
// folded, then substring) and the ignore-failure policy that lets a run fall
// back to un-numbered names when a lookup fails.
package metadata
