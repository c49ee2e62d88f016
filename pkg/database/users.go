package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jukebox-queue-system/pkg/models"
)

// EnsureUser creates the user row if it does not exist yet. Admin status is
// only ever granted here: a later patron session keeps an earlier admin flag.
func (db *DB) EnsureUser(ctx context.Context, id uuid.UUID, isAdmin bool) (*models.User, error) {
	updates := []string{"updated_at"}
	if isAdmin {
		updates = append(updates, "is_admin")
	}

	user := &models.User{ID: id, IsAdmin: isAdmin}
	if err := db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).
		Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	var stored models.User
	if err := db.DB.WithContext(ctx).First(&stored, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &stored, nil
}

// GetLastRequestTime reports false when the user has never made a request.
func (db *DB) GetLastRequestTime(ctx context.Context, userID uuid.UUID) (time.Time, bool, error) {
	var user models.User
	err := db.DB.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get user: %w", err)
	}
	if user.LastRequestTime == nil {
		return time.Time{}, false, nil
	}
	return *user.LastRequestTime, true, nil
}

// SetLastRequestTime records an accepted request, creating the user if needed.
func (db *DB) SetLastRequestTime(ctx context.Context, userID uuid.UUID, at time.Time) error {
	at = at.UTC()
	user := &models.User{ID: userID, LastRequestTime: &at}
	if err := db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_request_time", "updated_at"}),
		}).
		Create(user).Error; err != nil {
		return fmt.Errorf("failed to update last request time: %w", err)
	}
	return nil
}
