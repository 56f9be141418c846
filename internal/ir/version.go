package ir

// Version constants for the wire protocol and engine.
const (
	// WireVersion is the message envelope version.
	WireVersion = "1"

	// EngineVersion is the almanac engine version.
	EngineVersion = "0.1.0"
)
