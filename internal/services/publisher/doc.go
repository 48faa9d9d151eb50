// Package publisher runs the background publishing loop: on every tick it
// claims due jobs from the registry, publishes them sequentially through the
// platform Publisher, resolves each job with its outcome and tells the
// originating chat what happened.
//
// A failed pass is logged and retried on the next tick; a failed publish
// marks the job failed and is never retried automatically.
package publisher
