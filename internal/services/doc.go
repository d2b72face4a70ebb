// Package services defines shared utilities consumed by the pipeline stages
// and the external integrations (TiVo device, TVDB, drapto).
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, item labels, and stage names for
//     logging.
//   - Structured error markers plus the Wrap helper that keep the failure
//     taxonomy (configuration, metadata lookup, tool not found, tool
//     execution, tool timeout, cleanup) uniform across the pipeline.
//
// Use these helpers when wiring new stage logic so diagnostics stay
// consistent from the runner up to the batch summary.
package services
