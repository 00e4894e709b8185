package models

import "time"

// ChatChannel is the metadata document for a 1:1 conversation. Its id
// is derived from the member pair, so creation is an idempotent merge.
type ChatChannel struct {
	Id           string    `json:"id" bson:"_id,omitempty"`
	Participants []string  `json:"participants" bson:"participants"`
	LastUpdate   time.Time `json:"lastUpdate" bson:"lastUpdate"`
}

// Message is append-only: never edited, never deleted.
type Message struct {
	Id        string    `json:"id" bson:"_id,omitempty"`
	ChannelId string    `json:"channelId" bson:"channelId"`
	SenderId  string    `json:"senderId" bson:"senderId"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// ConversationPreview is the latest message of a channel together with
// the partner it belongs to, used for conversation-list previews.
type ConversationPreview struct {
	PartnerId string  `json:"partnerId"`
	Message   Message `json:"message"`
}
