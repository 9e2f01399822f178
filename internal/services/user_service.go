package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/chat/internal/models"
	"greendrake/chat/internal/utils"
)

// ErrUserNotFound is returned for missing or deleted users.
var ErrUserNotFound = errors.New("user not found")

// IUserService resolves marketplace users.
type IUserService interface {
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
}

const usersCollection = "users"

// userService implements IUserService.
type userService struct {
	db *mongo.Database
}

// NewUserService creates a new UserService.
func NewUserService(db *mongo.Database) IUserService {
	return &userService{db: db}
}

// FindByID finds a non-deleted user by ID.
func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID, "deleted": false}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID, err)
	}
	return &user, nil
}

// StaticUserService serves users from memory.
type StaticUserService struct {
	mu    sync.RWMutex
	users map[utils.SixID]models.User
}

func NewStaticUserService(users ...models.User) *StaticUserService {
	s := &StaticUserService{users: make(map[utils.SixID]models.User)}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

func (s *StaticUserService) Put(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *StaticUserService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok || u.Deleted {
		return nil, ErrUserNotFound
	}
	return &u, nil
}
