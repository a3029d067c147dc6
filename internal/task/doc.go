// Package task queues image generation requests and runs them one at a time.
//
// A Store keeps every task record in memory, a Queue orders pending ids and
// tracks the one being processed, and a single Worker drives the generator.
// The Runner ties these together and is what HTTP handlers talk to.
package task
