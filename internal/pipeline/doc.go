// Package pipeline wires the sensor streams into the depth processor and
// the pose classifier, and fans their results out to sinks, storage and
// the alert monitor.
//
// The depth and skeleton streams never share state. Each is fed through a
// single-slot mailbox so a slow handler drops stale frames instead of
// queueing them.
package pipeline
