// Package queue provides an in-process task queue with a configurable
// concurrency limit. Tasks wait in insertion order, start as soon as a slot
// is free, and can be inspected, reordered at submission time, cancelled
// cooperatively, and observed through lifecycle events.
//
// A Queue owns every Task it creates. Admission is evaluated synchronously
// after each mutating call, so a task that fits into a free slot is running
// by the time Add returns. Task bodies run on their own goroutines and
// receive a context that is cancelled with ErrCancelled when Cancel is
// called; the queue never interrupts a running body.
package queue
