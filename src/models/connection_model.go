package models

import (
	"sort"
	"strings"
	"time"
)

// ConnectionRequest is the stored request document. A rejected request
// is deleted rather than kept with a status, so every stored document
// is either pending or accepted.
type ConnectionRequest struct {
	Id        string           `json:"id" bson:"_id,omitempty"`
	FromId    string           `json:"fromId" bson:"fromId"`
	ToId      string           `json:"toId" bson:"toId"`
	Status    ConnectionStatus `json:"status" bson:"status"` // pending, accepted
	PairKey   string           `json:"-" bson:"pairKey"`
	CreatedAt time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time        `bson:"updatedAt" json:"updatedAt"`
}

type ConnectionStatus string

const (
	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusAccepted ConnectionStatus = "accepted"
)

// Connection is an accepted request projected from one member's point
// of view. It is derived, never stored.
type Connection struct {
	PartnerId string    `json:"partnerId"`
	Since     time.Time `json:"since"`
}

// PairKey returns the canonical key for an unordered member pair. Both
// directions of a request map to the same key, which is what lets a
// unique index close the duplicate-request race.
func PairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}
