// Package metadata implements the transactional metadata store: dataset
// registrations, user preferences, API credentials, system configuration,
// the audit log, and categorization rules. It is backed by
// modernc.org/sqlite and owns every entity in this list exclusively — the
// analytics store (internal/analytics) owns observations only.
package metadata
