// Package chat persists the shared room, its participants and the messages
// relayed through the gateway.
package chat

import "time"

// Room is a persisted conversation scope. Name is unique so the default room
// can be created idempotently.
type Room struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for Room model.
func (Room) TableName() string {
	return "rooms"
}

// Participant records that a user belongs to a room.
type Participant struct {
	RoomID   string    `gorm:"primaryKey;size:36" json:"room_id"`
	UserID   string    `gorm:"primaryKey;size:64" json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// TableName returns the table name for Participant model.
func (Participant) TableName() string {
	return "participants"
}

// Message is immutable once persisted. SenderID always comes from the
// presence registry, never from the client payload.
type Message struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	RoomID    string    `gorm:"size:36;not null;index" json:"room_id"`
	SenderID  string    `gorm:"size:64;not null" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName returns the table name for Message model.
func (Message) TableName() string {
	return "messages"
}
