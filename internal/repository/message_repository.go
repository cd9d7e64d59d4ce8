package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zerocode-chat/internal/model"
)

// MessageRepository is the MySQL side of the chat archive.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) AutoMigrate() error {
	if err := r.db.AutoMigrate(&model.ArchivedMessage{}); err != nil {
		return fmt.Errorf("migrate archived messages failed: %w", err)
	}
	return nil
}

// CreateBatch inserts rows, skipping any message id already archived, so redelivery is harmless.
func (r *MessageRepository) CreateBatch(messages []model.ArchivedMessage) error {
	if len(messages) == 0 {
		return nil
	}
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&messages).Error
	if err != nil {
		return fmt.Errorf("create archived messages failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListByOwner(ownerID string, limit int) ([]model.ArchivedMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var messages []model.ArchivedMessage
	if err := r.db.Where("owner_id = ?", ownerID).Order("sent_at ASC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list archived messages failed: %w", err)
	}
	return messages, nil
}
