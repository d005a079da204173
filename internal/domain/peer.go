package domain

import "time"

const MaxClientTokenLen = 64

// PeerMeta describes who is behind a connection.
// No transport or lifecycle logic here.
type PeerMeta struct {
	ClientToken string
	RemoteAddr  string
	UserAgent   string
	ConnectedAt time.Time
}

// NewPeerMeta avoids raw literals in adapters and keeps construction obvious.
func NewPeerMeta(token, remoteAddr, userAgent string) PeerMeta {
	if len(token) > MaxClientTokenLen {
		token = token[:MaxClientTokenLen]
	}
	return PeerMeta{
		ClientToken: token,
		RemoteAddr:  remoteAddr,
		UserAgent:   userAgent,
		ConnectedAt: time.Now(),
	}
}
