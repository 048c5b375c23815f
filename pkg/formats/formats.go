// Package formats parses the STM stream records: binary frame headers and the
// JSON metadata (channel info, mesh info, stream lists) served alongside them.
package formats
