package core

import "github.com/inkbytefo/oxis-xcord-sub000/internal/domain"

// SessionID identifies one signaling connection (one socket).
type SessionID string

// PeerSession binds an authenticated user and its signaling endpoint.
// This is what a room stores and fans out to.
type PeerSession interface {
	User() *domain.User
	Signal() SignalConnection
}

type peerSession struct {
	user *domain.User
	conn SignalConnection
}

func NewPeerSession(user *domain.User, conn SignalConnection) PeerSession {
	return &peerSession{user: user, conn: conn}
}

func (s *peerSession) User() *domain.User       { return s.user }
func (s *peerSession) Signal() SignalConnection { return s.conn }
