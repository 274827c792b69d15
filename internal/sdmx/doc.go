// Package sdmx implements the namespace-tolerant SDMX 2.1 XML parser
// (C4): a depth-first walk over encoding/xml tokens that extracts
// observation records regardless of which namespace prefix (or none)
// the source dataflow uses for its Obs elements.
package sdmx
