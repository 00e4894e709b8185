package models

import "time"

// Activity is a feed-worthy event emitted when a member posts
// something (opportunity, event, blog). Produced by the posting
// collaborators, consumed read-only by the notification feed.
type Activity struct {
	Id         string       `json:"id" bson:"_id,omitempty"`
	AuthorId   string       `json:"authorId" bson:"authorId"`
	AuthorName string       `json:"authorName" bson:"authorName"`
	Type       ActivityType `json:"type" bson:"type"`
	Title      string       `json:"title" bson:"title"`
	RefId      string       `json:"refId,omitempty" bson:"refId,omitempty"`
	CreatedAt  time.Time    `bson:"createdAt" json:"createdAt"`
}

type ActivityType string

const (
	ActivityTypeOpportunity ActivityType = "opportunity"
	ActivityTypeEvent       ActivityType = "event"
	ActivityTypeBlog        ActivityType = "blog"
)
