// Package crawler defines the domain types and collaborator interfaces shared by
// the discovery, enrichment, and persistence stages of the trend crawler.
package crawler
