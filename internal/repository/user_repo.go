package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/docstore"
	"learnizone-backend/internal/models"
)

type UserRepo struct {
	docs
}

func NewUserRepo(store docstore.Store) *UserRepo {
	return &UserRepo{docs{store}}
}

// Create assigns an id and stores the user. Emails are unique.
func (r *UserRepo) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return &apperr.ConflictError{Message: "Email already registered"}
	} else if !apperr.IsNotFound(err) {
		return err
	}

	user.ID = uuid.NewString()
	user.IsActive = true
	user.CreatedAt = time.Now().UTC()
	return r.put(ctx, usersCollection, user.ID, user)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.getInto(ctx, usersCollection, id, "User not found", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	users, err := queryAll[models.User](ctx, r.docs, usersCollection, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("email", docstore.OpEq, strings.ToLower(strings.TrimSpace(email)))},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, &apperr.NotFoundError{Message: "User not found"}
	}
	return &users[0], nil
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.merge(ctx, usersCollection, id, "User not found", docstore.Document{
		"last_login_at": at.UTC().Format(time.RFC3339Nano),
	})
}

// GetSettings returns the stored settings, or empty settings when the user
// never changed any.
func (r *UserRepo) GetSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	var settings models.UserSettings
	err := r.getInto(ctx, userSettingsCollection, userID, "Settings not found", &settings)
	if apperr.IsNotFound(err) {
		return &models.UserSettings{UserID: userID, Notifications: map[string]bool{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if settings.Notifications == nil {
		settings.Notifications = map[string]bool{}
	}
	return &settings, nil
}

// UpdateNotificationPreferences merges prefs into the stored preferences.
func (r *UserRepo) UpdateNotificationPreferences(ctx context.Context, userID string, prefs map[string]bool) (*models.UserSettings, error) {
	settings, err := r.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	for k, v := range prefs {
		settings.Notifications[k] = v
	}
	settings.UserID = userID
	settings.UpdatedAt = time.Now().UTC()
	if err := r.put(ctx, userSettingsCollection, userID, settings); err != nil {
		return nil, err
	}
	return settings, nil
}
