package model

import "time"

// Change is a store-layer change signal written in the same transaction as
// the bucket write it describes, and relayed to other processes.
type Change struct {
	ID          int64      `json:"id"`
	Origin      string     `json:"origin"`
	Topic       Topic      `json:"topic"`
	EntityID    string     `json:"entity_id"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at"`
}

// Announcement is a change staged inside a transaction before it has an ID.
type Announcement struct {
	Topic    Topic
	EntityID string
	Payload  []byte
}
