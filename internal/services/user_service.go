package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"weekend_planner_go_backend/internal/models"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type UserServiceDB interface {
	UpsertUserDB(ctx context.Context, user models.User) (*models.User, error)
	GetUserByAuth0IDDB(ctx context.Context, auth0ID string) (*models.User, error)
}

type UserService struct {
	db UserServiceDB
}

func NewUserService(db UserServiceDB) *UserService {
	return &UserService{db: db}
}

// CreateOrUpdateUser records the identity carried by a verified token and
// refreshes the profile fields on every login.
func (s *UserService) CreateOrUpdateUser(ctx context.Context, auth0ID, email, name, nickname string) (*models.User, error) {
	if auth0ID == "" {
		return nil, errors.New("token has no subject")
	}
	user, err := s.db.UpsertUserDB(ctx, models.User{
		Auth0ID:  auth0ID,
		Email:    email,
		Name:     name,
		Nickname: nickname,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create or update user: %w", err)
	}
	return user, nil
}

func (s *UserService) GetUserByAuth0ID(ctx context.Context, auth0ID string) (*models.User, error) {
	return s.db.GetUserByAuth0IDDB(ctx, auth0ID)
}

type DefaultUserServiceDB struct {
	db *gorm.DB
}

func NewUserServiceDB(db *gorm.DB) UserServiceDB {
	return &DefaultUserServiceDB{db: db}
}

func (s *DefaultUserServiceDB) UpsertUserDB(ctx context.Context, user models.User) (*models.User, error) {
	var out models.User
	result := s.db.WithContext(ctx).
		Where(models.User{Auth0ID: user.Auth0ID}).
		Assign(models.User{Email: user.Email, Name: user.Name, Nickname: user.Nickname}).
		FirstOrCreate(&out)
	if result.Error != nil {
		return nil, result.Error
	}
	return &out, nil
}

func (s *DefaultUserServiceDB) GetUserByAuth0IDDB(ctx context.Context, auth0ID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("auth0_id = ?", auth0ID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// MemoryUserServiceDB is the in-process user table for STORAGE_BACKEND=memory.
type MemoryUserServiceDB struct {
	mu     sync.Mutex
	nextID uint
	users  map[string]*models.User
}

func NewMemoryUserServiceDB() *MemoryUserServiceDB {
	return &MemoryUserServiceDB{users: make(map[string]*models.User)}
}

func (m *MemoryUserServiceDB) UpsertUserDB(ctx context.Context, user models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.users[user.Auth0ID]
	if !ok {
		m.nextID++
		user.ID = m.nextID
		existing = &user
		m.users[user.Auth0ID] = existing
	}
	if user.Email != "" {
		existing.Email = user.Email
	}
	if user.Name != "" {
		existing.Name = user.Name
	}
	if user.Nickname != "" {
		existing.Nickname = user.Nickname
	}
	out := *existing
	return &out, nil
}

func (m *MemoryUserServiceDB) GetUserByAuth0IDDB(ctx context.Context, auth0ID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[auth0ID]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *user
	return &out, nil
}
