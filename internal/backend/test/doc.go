// Package test contains a test suite with benchmarks for backend.Backend
// implementations.
//
// Backend implementations call Suite.RunTests with a function that returns a
// new, empty backend for every subtest.
package test
