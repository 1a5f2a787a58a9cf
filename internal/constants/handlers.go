package constants

// File upload constants
const (
	// MaxFrameUploadSize is the maximum accepted multipart frame upload (32 MB)
	MaxFrameUploadSize = 32 << 20
)

// Server constants
const (
	// ShutdownTimeoutSeconds bounds the graceful HTTP shutdown and the final gallery save
	ShutdownTimeoutSeconds = 10
)
