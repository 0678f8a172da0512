package domain

type RoomID int64

// MembershipState is the position of a connection relative to one room.
type MembershipState int

const (
	Unjoined MembershipState = iota
	Joined
)

// Delivery summarizes one fan-out. Recipients is the size of the snapshot
// the broadcast iterated. Delivered + Failed equals it unless the broadcast
// was canceled before sending.
type Delivery struct {
	Room       RoomID
	Recipients int
	Delivered  int
	Failed     int
}
