// Package entity defines domain types shared across the application.

package entity

import "time"

// EventType names the realtime events pushed to connected clients.
type EventType string

const (
	EventNewMessage   EventType = "new_message"
	EventMessageReply EventType = "message_reply"
)

// Event is one realtime update carrying the full message payload, so
// clients never need a follow-up read to render it.
type Event struct {
	Type    EventType `json:"type"`
	Message *Message  `json:"message"`
}

// Domain event kinds handed to the external messaging bridge.
// The bridge formats platform-specific payloads; the core only tags events.
const (
	EventUserRegistered = "user_registered"
	EventTopicCompleted = "topic_completed"
	EventMessageSent    = "message_sent"
)

var allEventKinds = []string{
	EventUserRegistered,
	EventTopicCompleted,
	EventMessageSent,
}

// DomainEvent describes a state change worth notifying administrators about.
type DomainEvent struct {
	Kind    string    `json:"kind"`
	User    *User     `json:"user,omitempty"`
	Message *Message  `json:"message,omitempty"`
	Topic   string    `json:"topic,omitempty"`
	At      time.Time `json:"at"`
}

func IsValidEventKind(kind string) bool {
	for _, k := range allEventKinds {
		if k == kind {
			return true
		}
	}
	return false
}
