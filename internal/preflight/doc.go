// Package preflight provides readiness checks for the tools, directories
// and services dvrflow depends on.
//
// These checks run in two contexts:
//   - Batch commands call CheckSystemDeps before expanding a source and
//     refuse to start when an enabled stage's tool is missing.
//   - The CLI "dvrflow status" command calls RunAll and the individual
//     checks to display readiness.
//
// Network checks are gated by configuration; unset services are skipped.
package preflight
