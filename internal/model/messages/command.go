package messages

import "time"

// Command is one inbound message from the remote chat channel.
type Command struct {
	ID         string    `json:"id,omitempty"` // transport message id, used for redelivery dedup
	SenderID   string    `json:"sender"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Notification is one outbound message on the MQTT chat transport.
type Notification struct {
	To        string    `json:"to"`
	Text      string    `json:"text"`
	Menu      []string  `json:"menu,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
