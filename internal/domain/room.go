package domain

// Room is the metadata returned by the room endpoint.
type Room struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// TypingEntry is one user currently typing in a room.
type TypingEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
