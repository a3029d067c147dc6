// Package api exposes the generation queue over HTTP: job submission, status
// polling, queue inspection, image download and a WebSocket status stream.
// Handlers translate HTTP concerns into calls on the task runner and the
// status notifier; they hold no state of their own.
package api
