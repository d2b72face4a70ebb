// Package drapto wraps the drapto AV1 encoding library as an in-process
// transcode engine and forwards its progress events to the logger.
package drapto
