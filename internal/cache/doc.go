// Package cache provides the in-process caching and string-matching data
// structures shared by the repository facade, the PowerBI schema/DAX
// generators, and the categorization engine: a thread-safe TTL cache and
// an Aho-Corasick multi-pattern matcher.
package cache
