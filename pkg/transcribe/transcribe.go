// Package transcribe wraps a streaming speech-to-text service behind a
// small interface: an ordered, possibly-unbounded audio frame sequence
// in, an ordered sequence of recognized utterances out.
package transcribe

import "context"

// Result is one recognized utterance. IsFinal distinguishes settled text
// from partial hypotheses that may still be revised.
type Result struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// StreamConfig describes the audio being streamed.
type StreamConfig struct {
	LanguageCode string
	SampleRateHz int32
}

// Stream is one live transcription session.
type Stream interface {
	// Send submits the next audio frame (PCM).
	Send(ctx context.Context, frame []byte) error

	// Results delivers recognized utterances in order. The channel is
	// closed when the service ends the stream; check Err afterwards.
	Results() <-chan Result

	// Close ends the audio input and releases the session.
	Close() error

	// Err returns the stream failure, if any, once Results is closed.
	Err() error
}

// Streamer opens transcription streams.
type Streamer interface {
	Open(ctx context.Context, cfg StreamConfig) (Stream, error)
}
