package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	authdomain "mailsync-backend/internal/auth/domain"
	emaildomain "mailsync-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxCursorCASAttempts = 3

// userRepository implements UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new instance of userRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{
		db: db,
	}
}

func (r *userRepository) Create(ctx context.Context, user *authdomain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Email = strings.TrimSpace(user.Email)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("user %s: %w", user.Email, emaildomain.ErrConflict)
	}
	return err
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*authdomain.User, error) {
	var user authdomain.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.TrimSpace(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", email, emaildomain.ErrNotFound)
		}
		return nil, fmt.Errorf("find user: %w: %v", emaildomain.ErrTransient, err)
	}
	return &user, nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*authdomain.User, error) {
	var user authdomain.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, emaildomain.ErrNotFound)
		}
		return nil, fmt.Errorf("find user: %w: %v", emaildomain.ErrTransient, err)
	}
	return &user, nil
}

func (r *userRepository) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error {
	updates := map[string]interface{}{
		"access_token": accessToken,
		"token_expiry": expiry,
		"updated_at":   time.Now(),
	}
	// Google omits the refresh token on most refreshes
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	return r.db.WithContext(ctx).Model(&authdomain.User{}).Where("id = ?", userID).Updates(updates).Error
}

func (r *userRepository) UpdateCursor(ctx context.Context, userID, cursor string) error {
	result := r.db.WithContext(ctx).Model(&authdomain.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"history_cursor": cursor, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("update cursor: %w: %v", emaildomain.ErrTransient, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, emaildomain.ErrNotFound)
	}
	return nil
}

// AdvanceCursor is a compare-and-set on history_cursor: the UPDATE only
// matches if the row still holds the value read a moment earlier, so a
// concurrent writer that already moved the cursor further is never undone.
func (r *userRepository) AdvanceCursor(ctx context.Context, userID, cursor string) (bool, error) {
	db := r.db.WithContext(ctx)
	for attempt := 0; attempt < maxCursorCASAttempts; attempt++ {
		var user authdomain.User
		if err := db.Select("id", "history_cursor").Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, fmt.Errorf("user %s: %w", userID, emaildomain.ErrNotFound)
			}
			return false, fmt.Errorf("read cursor: %w: %v", emaildomain.ErrTransient, err)
		}
		if emaildomain.CompareCursor(cursor, user.Cursor) <= 0 {
			return false, nil
		}

		result := db.Model(&authdomain.User{}).
			Where("id = ? AND history_cursor = ?", userID, user.Cursor).
			Updates(map[string]interface{}{"history_cursor": cursor, "updated_at": time.Now()})
		if result.Error != nil {
			return false, fmt.Errorf("advance cursor: %w: %v", emaildomain.ErrTransient, result.Error)
		}
		if result.RowsAffected == 1 {
			return true, nil
		}
	}
	return false, fmt.Errorf("advance cursor for %s: lost %d races: %w", userID, maxCursorCASAttempts, emaildomain.ErrTransient)
}
