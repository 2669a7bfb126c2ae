package domain

// Peer represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Peer struct {
	User  *User
	Muted bool
}

// NewPeer avoids raw literals in adapters and keeps construction obvious.
func NewPeer(user *User) *Peer {
	return &Peer{User: user}
}
