package model

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Locations []SubscriptionLocation `gorm:"foreignKey:Endpoint;references:Endpoint;constraint:OnDelete:CASCADE"`
}

// SubscriptionLocation links a subscription to a location it wants
// "not busy" alerts for. Locations live in the static catalog, not the DB.
type SubscriptionLocation struct {
	Endpoint   string `gorm:"primaryKey"`
	LocationID string `gorm:"primaryKey;size:128;index"`
}
