// Package naming plans canonical recording names and the artifact path each
// pipeline stage writes, and answers the existence checks that drive stage
// skipping.
package naming
