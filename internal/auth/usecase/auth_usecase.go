package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	authdomain "keepr-backend/internal/auth/domain"
	authdto "keepr-backend/internal/auth/dto"
	"keepr-backend/internal/auth/repository"
	"keepr-backend/pkg/apperror"
	"keepr-backend/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

// AuthUsecase verifies the bearer tokens issued to application users
type AuthUsecase interface {
	ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error)
	IssueAccessToken(ctx context.Context, user *authdomain.User) (*authdto.TokenResponse, error)
	// DevSignIn finds or creates the user with email and issues a session token. Development only.
	DevSignIn(ctx context.Context, email, name string) (*authdto.TokenResponse, error)
}

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	userRepo repository.UserRepository
	config   *config.Config
	now      func() time.Time
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(userRepo repository.UserRepository, cfg *config.Config) AuthUsecase {
	return &authUsecase{
		userRepo: userRepo,
		config:   cfg,
		now:      time.Now,
	}
}

func (u *authUsecase) IssueAccessToken(ctx context.Context, user *authdomain.User) (*authdto.TokenResponse, error) {
	now := u.now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     now.Add(u.config.JWTAccessExpiry).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(u.config.JWTSecret))
	if err != nil {
		return nil, err
	}

	return &authdto.TokenResponse{
		AccessToken: signed,
		ExpiresIn:   int64(u.config.JWTAccessExpiry.Seconds()),
	}, nil
}

func (u *authUsecase) DevSignIn(ctx context.Context, email, name string) (*authdto.TokenResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", apperror.ErrInvalidInput)
	}

	user, err := u.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &authdomain.User{Email: email, Name: name}
		if err := u.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	}

	return u.IssueAccessToken(ctx, user)
}

func (u *authUsecase) ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(u.config.JWTSecret), nil
	}, jwt.WithTimeFunc(u.now))

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", apperror.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid token claims", apperror.ErrUnauthorized)
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("%w: invalid token claims", apperror.ErrUnauthorized)
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, fmt.Errorf("%w: user not found", apperror.ErrUnauthorized)
	}

	return user, nil
}
