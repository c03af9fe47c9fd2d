package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"picmark/gallery/internal/apperr"
	"picmark/gallery/internal/domain"
	"picmark/gallery/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// --- Error Definitions ---
var (
	ErrUserAlreadyExists    = errors.New("user with this email already exists")
	ErrAuthenticationFailed = errors.New("authentication failed: invalid email or password")
	ErrHashingFailed        = errors.New("failed to hash password")
	ErrTokenGeneration      = errors.New("failed to generate authentication token")
)

const (
	minPasswordLength = 6
	tokenIssuer       = "picmark"
)

type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (token string, user *domain.User, err error)
	ParseToken(token string) (domain.Actor, error)
}

// Claims is the payload of a session token.
type Claims struct {
	UserID string      `json:"uid"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type authService struct {
	userRepo      repository.UserRepository
	jwtSecret     string
	jwtExpiration time.Duration
	adminEmails   map[string]struct{}
	now           func() time.Time
}

// NewAuthService creates an auth service. Users registering with one of adminEmails get the admin role.
func NewAuthService(userRepo repository.UserRepository, jwtSecret string, jwtExpiration time.Duration, adminEmails []string) AuthService {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty") // Critical configuration
	}
	if jwtExpiration <= 0 {
		jwtExpiration = time.Hour * 1
	}
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &authService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		adminEmails:   admins,
		now:           time.Now,
	}
}

// Register handles new user registration.
func (s *authService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	const op = "AuthService.Register"

	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" || password == "" {
		return nil, apperr.E(apperr.CodeInvalidArgument, op, "username, email and password are required", nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.E(apperr.CodeInvalidArgument, op, "invalid email address", err)
	}
	if len(password) < minPasswordLength {
		return nil, apperr.E(apperr.CodeInvalidArgument, op, "password must be at least 6 characters", nil)
	}

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil, apperr.E(apperr.CodeConflict, op, ErrUserAlreadyExists.Error(), ErrUserAlreadyExists)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.E(apperr.CodeInternal, op, "failed to look up user", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.E(apperr.CodeInternal, op, ErrHashingFailed.Error(), err)
	}

	role := domain.RoleUser
	if _, ok := s.adminEmails[email]; ok {
		role = domain.RoleAdmin
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         role,
	}

	userID, err := s.userRepo.Create(ctx, user)
	if err != nil {
		// The unique email index catches a concurrent registration that passed the lookup above.
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperr.E(apperr.CodeConflict, op, ErrUserAlreadyExists.Error(), ErrUserAlreadyExists)
		}
		return nil, apperr.E(apperr.CodeInternal, op, "failed to create user", err)
	}
	user.ID = userID

	user.PasswordHash = ""
	return user, nil
}

// Login handles user authentication and JWT generation.
func (s *authService) Login(ctx context.Context, email, password string) (token string, user *domain.User, err error) {
	const op = "AuthService.Login"

	if email == "" || password == "" {
		return "", nil, apperr.E(apperr.CodeInvalidArgument, op, "email and password are required", nil)
	}

	user, err = s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, apperr.E(apperr.CodeUnauthorized, op, ErrAuthenticationFailed.Error(), ErrAuthenticationFailed)
		}
		return "", nil, apperr.E(apperr.CodeInternal, op, "failed to look up user", err)
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperr.E(apperr.CodeUnauthorized, op, ErrAuthenticationFailed.Error(), ErrAuthenticationFailed)
	}

	token, err = s.generateJWT(user)
	if err != nil {
		return "", nil, apperr.E(apperr.CodeInternal, op, ErrTokenGeneration.Error(), err)
	}

	user.PasswordHash = ""
	return token, user, nil
}

// ParseToken validates a session token and returns the caller it identifies.
func (s *authService) ParseToken(tokenString string) (domain.Actor, error) {
	const op = "AuthService.ParseToken"

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Actor{}, apperr.E(apperr.CodeUnauthorized, op, "token has expired", err)
		}
		return domain.Actor{}, apperr.E(apperr.CodeUnauthorized, op, "invalid token", err)
	}
	if !token.Valid || claims.UserID == "" || claims.Role == "" {
		return domain.Actor{}, apperr.E(apperr.CodeUnauthorized, op, "invalid token or missing claims", nil)
	}

	actor, err := domain.NewActor(claims.UserID, claims.Role)
	if err != nil {
		return domain.Actor{}, apperr.E(apperr.CodeUnauthorized, op, "invalid token subject", err)
	}
	return actor, nil
}

func (s *authService) generateJWT(user *domain.User) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: user.ID.Hex(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}
