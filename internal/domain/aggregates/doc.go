// Package aggregates declares the benefit write boundary and the error codes
// every layer above it classifies failures with. It has no persistence or
// transport dependencies.
package aggregates
