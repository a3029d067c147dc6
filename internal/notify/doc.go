// Package notify pushes task status snapshots to live observers.
//
// A Notifier tracks the subscribers attached to each task id. A Bridge runs
// per connection, watches one task and decides when a snapshot is worth
// pushing and when the stream is over.
package notify
