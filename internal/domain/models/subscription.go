package models

import "time"

// Subscription is a directed edge: Subscriber follows Channel.
type Subscription struct {
	SubscriberID string    `json:"subscriber"`
	ChannelID    string    `json:"channel"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Channel is the public view of a user as seen by another user.
type Channel struct {
	ID                string `json:"_id"`
	Username          string `json:"username"`
	FullName          string `json:"fullname"`
	Avatar            string `json:"avatar"`
	CoverImage        string `json:"coverImage"`
	SubscribersCount  int64  `json:"subscribersCount"`
	SubscribedToCount int64  `json:"subscribedToCount"`
	IsSubscribed      bool   `json:"isSubscribed"`
}
