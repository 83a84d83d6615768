package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/farm-market-api/internal/dto"
	"github.com/flicky/farm-market-api/internal/mail"
	"github.com/flicky/farm-market-api/internal/model"
	"github.com/flicky/farm-market-api/internal/repository"
)

var ErrInvalidCredentials = errors.New("invalid username/email or password")

const notifyTimeFormat = "02.01.2006 15:04"

type AuthService struct {
	userRepo  repository.UserRepository
	notifier  Notifier
	jwtSecret []byte
	jwtExpiry time.Duration
	now       func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, notifier Notifier, jwtSecret string, jwtExpiry time.Duration) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		notifier:  orNop(notifier),
		jwtSecret: []byte(jwtSecret),
		jwtExpiry: jwtExpiry,
		now:       time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error) {
	role := model.Role(req.Role)
	if !role.IsValid() {
		return nil, validationf("role must be %q or %q", model.RoleFarmer, model.RoleProducer)
	}

	existing, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}
	existing, err = s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	hash := string(hashed)

	user := &model.User{
		Username: req.Username, Email: req.Email, PasswordHash: &hash,
		FullName: req.FullName, Role: role, Location: req.Location, Phone: req.Phone,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, duplicateUserError(err)
	}
	return s.authResponse(user, "")
}

func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error) {
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		if user, err = s.userRepo.GetByEmail(ctx, req.Username); err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
	}
	// Accounts created through Google have no password and cannot log in here.
	if user == nil || user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	s.notifier.Notify(ctx, user.Email, mail.TemplateLoginAlert, map[string]string{
		"full_name": user.FullName,
		"username":  user.Username,
		"time":      s.now().Format(notifyTimeFormat),
	})
	return s.authResponse(user, "")
}

// GoogleLogin signs in with an external identity. The bool result reports
// whether a new account was created.
func (s *AuthService) GoogleLogin(ctx context.Context, req dto.GoogleLoginRequest) (*dto.AuthResponse, bool, error) {
	user, err := s.userRepo.GetByGoogleID(ctx, req.GoogleID)
	if err != nil {
		return nil, false, fmt.Errorf("get user by google id: %w", err)
	}
	if user != nil {
		resp, err := s.authResponse(user, "")
		return resp, false, err
	}

	user, err = s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, false, fmt.Errorf("get user by email: %w", err)
	}
	if user != nil {
		if user.GoogleID == nil {
			if err := s.userRepo.LinkGoogleID(ctx, user.ID, req.GoogleID); err != nil {
				return nil, false, fmt.Errorf("link google id: %w", err)
			}
			user.GoogleID = &req.GoogleID
		}
		resp, err := s.authResponse(user, "")
		return resp, false, err
	}

	role := model.RoleFarmer
	if req.Role != "" {
		role = model.Role(req.Role)
		if !role.IsValid() {
			return nil, false, validationf("role must be %q or %q", model.RoleFarmer, model.RoleProducer)
		}
	}
	username, err := s.uniqueUsername(ctx, strings.SplitN(req.Email, "@", 2)[0])
	if err != nil {
		return nil, false, err
	}

	googleID := req.GoogleID
	user = &model.User{
		Username: username, Email: req.Email, FullName: req.FullName,
		Role: role, GoogleID: &googleID,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, false, duplicateUserError(err)
	}

	s.notifier.Notify(ctx, user.Email, mail.TemplateWelcome, map[string]string{
		"full_name": user.FullName,
		"username":  user.Username,
		"email":     user.Email,
		"time":      s.now().Format(notifyTimeFormat),
	})
	resp, err := s.authResponse(user, "Signed up with Google successfully")
	return resp, true, err
}

// uniqueUsername returns base, or base followed by the first counter
// (1, 2, ...) not yet taken.
func (s *AuthService) uniqueUsername(ctx context.Context, base string) (string, error) {
	if base == "" {
		base = "user"
	}
	candidate := base
	for i := 1; ; i++ {
		existing, err := s.userRepo.GetByUsername(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
}

func (s *AuthService) authResponse(user *model.User, message string) (*dto.AuthResponse, error) {
	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &dto.AuthResponse{UserResponse: toUserResponse(user), Token: token, Message: message}, nil
}

func (s *AuthService) generateToken(user *model.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(user.ID, 10),
		"role": string(user.Role),
		"exp":  now.Add(s.jwtExpiry).Unix(),
		"iat":  now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// duplicateUserError maps a unique violation that slipped past the
// pre-insert checks to the matching conflict.
func duplicateUserError(err error) error {
	var cerr *repository.ConstraintError
	if errors.As(err, &cerr) && errors.Is(err, repository.ErrDuplicate) {
		switch cerr.Column("users") {
		case "username":
			return ErrUsernameTaken
		case "email":
			return ErrEmailTaken
		}
	}
	return fmt.Errorf("create user: %w", err)
}

func toUserResponse(user *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID: user.ID, Username: user.Username, Email: user.Email,
		FullName: user.FullName, Role: string(user.Role), Location: user.Location,
		Phone: user.Phone, Description: user.Description,
	}
}
