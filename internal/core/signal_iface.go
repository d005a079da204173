package core

// FrameKind mirrors the WebSocket data message type so a frame is
// re-emitted exactly as it arrived.
type FrameKind uint8

const (
	FrameText FrameKind = iota + 1
	FrameBinary
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Frame is an opaque payload.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

func TextFrame(b []byte) Frame   { return Frame{Kind: FrameText, Payload: b} }
func BinaryFrame(b []byte) Frame { return Frame{Kind: FrameBinary, Payload: b} }

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues f without blocking.
	TrySend(f Frame) error
	Close()
}
