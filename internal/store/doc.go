// Package store persists crawl progress. The state file is a single JSON
// document that is rewritten in full on every save.
package store
