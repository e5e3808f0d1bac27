// Package enrich implements the bounded-concurrency enrichment pipeline.
//
// A Coordinator receives the video ids discovered for one keyword and admits
// each one, in submission order, through a gate.Gate into a Task. A Task waits
// a per-item delay, fetches the view and stat resources concurrently, merges
// them with Normalize, scores the result with EngagementRate, and pushes one
// EnrichedRecord to the sink. Every failure inside a Task is terminal for that
// video only: it is logged with the video id and never reaches the Coordinator.
package enrich
