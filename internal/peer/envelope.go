package peer

import "github.com/pion/webrtc/v4"

// Envelope is what two callpeer instances exchange through the relay.
// The relay itself never reads it.
type Envelope struct {
	Type      string                   `json:"type"`
	From      string                   `json:"from,omitempty"`
	Reply     bool                     `json:"reply,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

const (
	TypeHello     = "hello"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
)
