package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"order_fulfillment/internal/models"
	"order_fulfillment/internal/repository"
	apperrors "order_fulfillment/pkg/errors"

	"golang.org/x/crypto/bcrypt"
)

const apiKeyPrefix = "ofk_"

type UserService interface {
	// CreateUser stores the user and returns a freshly issued API key. The key is not recoverable later.
	CreateUser(ctx context.Context, user *models.User) (string, error)
	AuthenticateAPIKey(ctx context.Context, apiKey string) (*models.User, error)
}

type userService struct {
	userRepo repository.UserRepository
	cost     int
}

func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo, cost: bcrypt.DefaultCost}
}

// NewUserServiceWithCost is NewUserService with a custom bcrypt cost.
func NewUserServiceWithCost(userRepo repository.UserRepository, cost int) UserService {
	return &userService{userRepo: userRepo, cost: cost}
}

func (s *userService) CreateUser(ctx context.Context, user *models.User) (string, error) {
	if strings.TrimSpace(user.Username) == "" || strings.TrimSpace(user.Email) == "" {
		return "", apperrors.Validation("username and email are required")
	}
	if user.Role == "" {
		user.Role = string(models.Staff)
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), s.cost)
	if err != nil {
		return "", err
	}
	user.APIKeyLookup = apiKeyLookup(apiKey)
	user.APIKeyHash = string(hash)
	user.IsActive = true

	if err := s.userRepo.Create(ctx, user); err != nil {
		return "", err
	}
	return apiKey, nil
}

func (s *userService) AuthenticateAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, &apperrors.ErrUnauthorized{Message: "missing API key"}
	}

	user, err := s.userRepo.GetByAPIKeyLookup(ctx, apiKeyLookup(apiKey))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, &apperrors.ErrUnauthorized{Message: "invalid API key"}
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, &apperrors.ErrUnauthorized{Message: "invalid API key"}
	}
	if !user.IsActive {
		return nil, &apperrors.ErrUnauthorized{Message: "user is disabled"}
	}
	return user, nil
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

func apiKeyLookup(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
