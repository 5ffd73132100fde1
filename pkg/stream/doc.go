// Package stream implements StreamManager: a single upstream
// length-prefixed frame connection per device, fanned out to many
// concurrent HTTP MJPEG subscribers.
//
// The upstream connection is opened lazily by the first subscriber and
// torn down after a grace period once the last subscriber leaves. A slow
// subscriber never blocks the broadcaster or its siblings: its queue is
// bounded and a full queue simply drops that subscriber's frame.
package stream
