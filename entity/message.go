package entity

import "time"

// Message is one entry of the user↔admin channel. Content is immutable
// once created; only an admin reply or a read-state update mutates the
// record afterwards. The ID is a ULID, so lexicographic order is creation
// order.
type Message struct {
	ID        string     `json:"id" bson:"id"`
	UserID    string     `json:"user_id" bson:"user_id"`
	UserName  string     `json:"user_name" bson:"user_name"`
	Content   string     `json:"content" bson:"content"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	Read      bool       `json:"read" bson:"read"`
	Reply     string     `json:"reply,omitempty" bson:"reply,omitempty"`
	RepliedAt *time.Time `json:"replied_at,omitempty" bson:"replied_at,omitempty"`
}

func (m *Message) HasReply() bool {
	return m.Reply != ""
}
