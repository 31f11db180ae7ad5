/*
Package streaming delivers progress events to clients.

# Event Streams

EventStream turns an http.ResponseWriter into a server-sent event stream.
Each progress.Event is written as one frame:

	data: {"status":"processing","operation":"exif",...}

followed by a blank line. Frames are flushed as soon as they are written so
the client sees progress in real time.

	stream := streaming.NewEventStream(r.Context(), w)
	defer stream.Close()

	if err := stream.Emit(ctx, ev); err != nil {
		// client gone or write timed out
	}

Emit calls are serialized by a mutex. Close is idempotent, and any Emit
after Close returns ErrStreamClosed.

# Timeout Protection

Writes go through a TimeoutWriter, which gives each write a deadline of
DefaultWriteTimeout. A client that stops reading produces ErrWriteTimeout
instead of blocking the run; one that disconnects produces ErrClientGone.
Either error sticks, so the run driver sees it on its next frame and stops.
There is no idle limit between frames.

# Plain Writers and Decoding

FrameWriter writes the same frames to any io.Writer; catalogctl uses it to
print a local run on stdout. FrameReader decodes a frame sequence back into
events. It tolerates comment lines and multi-line data fields, and is used
by catalogctl watch and by tests.
*/
package streaming
