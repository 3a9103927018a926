package domain

import "errors"

// Error taxonomy for the bridging core. Handlers translate these to HTTP
// statuses: validation failures to 4xx, timeouts to 504, the rest to 500.
var (
	// ErrSessionNotFound indicates the referenced session is not in the
	// registry (never existed, or already torn down).
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidTarget indicates an unrecognized playback target name.
	ErrInvalidTarget = errors.New("invalid playback target")

	// ErrRemoteCommand indicates a control-plane command failed.
	ErrRemoteCommand = errors.New("remote command failed")

	// ErrOriginationFailed indicates the second leg could not be dialed.
	ErrOriginationFailed = errors.New("origination failed")

	// ErrPlaybackFailed indicates the control plane reported a failed
	// playback.
	ErrPlaybackFailed = errors.New("playback failed")

	// ErrPlaybackTimeout indicates a playback neither finished nor
	// failed within the playback window. The underlying operation is not
	// cancelled and may still complete later.
	ErrPlaybackTimeout = errors.New("playback timeout")

	// ErrTranscriptionActive indicates a capture is already running for
	// the session.
	ErrTranscriptionActive = errors.New("transcription already active")

	// ErrTranscription indicates the transcription pipeline could not be
	// established or failed mid-stream.
	ErrTranscription = errors.New("transcription service failure")
)
