// Package repository implements the unified repository (C3): the
// single entry point composing the metadata store (C1) and the
// analytics store (C2), plus a short-lived in-process preference
// cache and an audit-logging convenience wrapper.
package repository
