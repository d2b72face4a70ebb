// Package pipeline carries one recording through the processing stages:
// resolving metadata, acquiring from the device, decrypting, detecting
// commercials, transcoding and finalizing.
//
// Every stage decides once, before it runs, whether its own artifact or a
// later stage's artifact already exists and skips itself if so. Stage tools
// write to a partial path that is renamed into place on success, so an
// interrupted run never leaves something a later run would mistake for a
// finished artifact. Inputs are only removed by the replace policies after
// the successor is verified to have content.
package pipeline
