// Package logging is the single structured-logging entry point for
// Osservatorio: one global zerolog.Logger, configured once via Init,
// used by the metadata store, analytics store, ingestion pipeline,
// export engine and PowerBI components alike.
package logging
