package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jukebox-queue-system/pkg/apperr"
	"github.com/jukebox-queue-system/pkg/models"
)

func (db *DB) GetRules(ctx context.Context) ([]models.Rule, error) {
	var rules []models.Rule
	if err := db.DB.WithContext(ctx).Order("name ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to get rules: %w", err)
	}
	return rules, nil
}

func (db *DB) GetRule(ctx context.Context, name string) (*models.Rule, error) {
	var rule models.Rule
	if err := db.DB.WithContext(ctx).First(&rule, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("rule %s: %w", name, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

// UpdateRule changes the value and, when non-empty, the description of an
// existing rule.
func (db *DB) UpdateRule(ctx context.Context, name, value, description string) (*models.Rule, error) {
	var rule *models.Rule
	err := db.Transaction(ctx, func(tx *DB) error {
		var err error
		rule, err = tx.GetRule(ctx, name)
		if err != nil {
			return err
		}
		rule.Value = value
		if description != "" {
			rule.Description = description
		}
		return tx.DB.Save(rule).Error
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// DeleteRule is used by tests and maintenance to drop a rule entirely.
func (db *DB) DeleteRule(ctx context.Context, name string) error {
	if err := db.DB.WithContext(ctx).Delete(&models.Rule{}, "name = ?", name).Error; err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}
