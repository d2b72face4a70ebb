// Package testsupport builds temp-dir configs, stub tool scripts and ledgers
// for package tests.
package testsupport
