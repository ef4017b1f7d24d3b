package models

// User is a connected room member. Users exist only for the lifetime of
// their connection; they are created on join-handshake completion and
// destroyed on disconnect.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"` // server-assigned, unique-ish within the room
}

// Cursor is a member's last reported pointer position. Cursors are
// advisory: last write wins per user, nothing is persisted, and they
// never participate in undo history.
type Cursor struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	UserID   string  `json:"userId"`
	UserName string  `json:"userName"`
	Color    string  `json:"color"`
}
