// Package engine decides which schedules are due, claims each fire with a
// conditional store write, publishes the device command, and mirrors the
// device's desired state.
//
// Any number of engine instances may evaluate the same store concurrently;
// the store's compare-and-set on the last-fired timestamp is the only
// coordination between them. A publish failure never rolls a claim back:
// the design favors no-duplicate-delivery over guaranteed delivery, and a
// missed fire waits for its next natural occurrence.
package engine
