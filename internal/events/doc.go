// Package events provides in-process change notifications for tasks.
//
// The task store publishes a TaskUpdated event on the task's id after every
// write; status stream loops subscribe to the ids they observe so they can
// react to a change without waiting for their next poll tick. Delivery is
// best effort and never blocks the publisher.
package events
