// Package crawler holds the domain model of the cadastral crawl: plot records,
// crawl checkpoints, probe outcomes, the error taxonomy, and the interfaces
// implemented by the prober, stores, sinks, and publishers.
package crawler
