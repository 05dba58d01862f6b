// Package queries holds the read side: raw SQL over the dispatch log tables,
// returning read models instead of domain aggregates.
package queries
