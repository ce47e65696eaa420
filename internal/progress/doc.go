// Package progress keeps an in-memory view of the running crawl for the
// status API.
package progress
