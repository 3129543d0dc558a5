package notification

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"facility-finder-backend/internal/model"
)

// SaveSubscription creates or replaces a subscription and the set of
// locations it is subscribed to.
func SaveSubscription(ctx context.Context, db *gorm.DB, sub model.PushSubscription, locationIDs []string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Locations").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&sub).Error; err != nil {
			return fmt.Errorf("failed to upsert subscription: %w", err)
		}

		if err := tx.Where("endpoint = ?", sub.Endpoint).Delete(&model.SubscriptionLocation{}).Error; err != nil {
			return fmt.Errorf("failed to clear subscribed locations: %w", err)
		}
		if len(locationIDs) == 0 {
			return nil
		}

		rows := make([]model.SubscriptionLocation, 0, len(locationIDs))
		seen := make(map[string]struct{}, len(locationIDs))
		for _, id := range locationIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			rows = append(rows, model.SubscriptionLocation{Endpoint: sub.Endpoint, LocationID: id})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to save subscribed locations: %w", err)
		}
		return nil
	})
}

// LoadSubscription returns a subscription with its locations, or
// gorm.ErrRecordNotFound.
func LoadSubscription(ctx context.Context, db *gorm.DB, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	err := db.WithContext(ctx).Preload("Locations").First(&sub, "endpoint = ?", endpoint).Error
	return sub, err
}

// DeleteSubscription removes a subscription and its location links.
func DeleteSubscription(ctx context.Context, db *gorm.DB, endpoint string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("endpoint = ?", endpoint).Delete(&model.SubscriptionLocation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.PushSubscription{Endpoint: endpoint}).Error
	})
}
