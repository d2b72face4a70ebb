// Package tivo talks to a TiVo DVR over its TiVoConnect HTTP interface. It
// pages through the NowPlaying container, filters recordings by title and
// episode, and downloads the protected transport stream with digest
// authentication against the device's self-signed endpoint.
package tivo
