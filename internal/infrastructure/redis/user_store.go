package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"

	"github.com/go-redis/redis/v8"
)

const (
	userKeyPrefix = "user:"
	usernameIndex = "users:by_username"
	emailIndex    = "users:by_email"
)

var createUserScript = redis.NewScript(`
    if redis.call('HEXISTS', KEYS[2], ARGV[2]) == 1 then
        return 'username'
    end
    if redis.call('HEXISTS', KEYS[3], ARGV[3]) == 1 then
        return 'email'
    end
    if redis.call('EXISTS', KEYS[1]) == 1 then
        return 'id'
    end
    redis.call('HSET', KEYS[1],
        'id', ARGV[1],
        'username', ARGV[2],
        'email', ARGV[3],
        'password_hash', ARGV[4],
        'role', ARGV[5],
        'created_at', ARGV[6])
    redis.call('HSET', KEYS[2], ARGV[2], ARGV[1])
    redis.call('HSET', KEYS[3], ARGV[3], ARGV[1])
    return 'ok'
`)

// UserStore keeps each user in a hash with username and email indexes beside it.
type UserStore struct {
	client *redis.Client
}

func NewUserStore(client *redis.Client) *UserStore {
	return &UserStore{client: client}
}

func (s *UserStore) CreateUser(ctx context.Context, user *domain.User) error {
	res, err := createUserScript.Run(ctx, s.client,
		[]string{userKeyPrefix + user.ID, usernameIndex, emailIndex},
		user.ID, user.Username, user.Email, user.PasswordHash, string(user.Role),
		user.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Text()
	if err != nil {
		return fmt.Errorf("create user %s: %w", user.ID, err)
	}

	switch res {
	case "ok":
		return nil
	case "username":
		return fmt.Errorf("username %s: %w", user.Username, domain.ErrUserExists)
	case "email":
		return fmt.Errorf("email %s: %w", user.Email, domain.ErrUserExists)
	default:
		return fmt.Errorf("user %s: %w", user.ID, domain.ErrDuplicateKey)
	}
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	id, err := s.client.HGet(ctx, usernameIndex, username).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
		}
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *UserStore) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	fields, err := s.client.HGetAll(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("user %s created_at: %w", userID, err)
	}

	return &domain.User{
		ID:           fields["id"],
		Username:     fields["username"],
		Email:        fields["email"],
		PasswordHash: fields["password_hash"],
		Role:         domain.Role(fields["role"]),
		CreatedAt:    createdAt,
	}, nil
}
