// Package tvdb is a minimal client for The TVDB v2 API covering login,
// series search and paged episode listings.
package tvdb
