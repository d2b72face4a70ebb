// Package textutil provides filename sanitization and Unicode-aware title
// matching used when naming recordings and matching episode titles.
package textutil
