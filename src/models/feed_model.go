package models

import "time"

// Alert is a one-shot, user-facing notice. The aggregator emits at
// most one Alert per newly seen item; it is never persisted.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	Summary   string    `json:"summary"`
	RequestId string    `json:"requestId,omitempty"`
	PartnerId string    `json:"partnerId,omitempty"`
	At        time.Time `json:"at"`
}

type AlertKind string

const (
	AlertKindConnectionRequest AlertKind = "connection_request"
	AlertKindMessage           AlertKind = "message"
)

// FeedCounts is the badge state maintained alongside alerts. Requests
// tracks the size of the current pending snapshot; Messages tracks the
// number of distinct partners with an unseen latest message.
type FeedCounts struct {
	Requests int `json:"requests"`
	Messages int `json:"messages"`
	Total    int `json:"total"`
}
