package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 190
	minPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordLength    = 72
	usernameCacheTTL     = 30 * time.Minute
	usernameCacheCleanup = 10 * time.Minute
)

var (
	// ErrInvalidCredentials indicates an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUsernameTaken indicates a registration for an existing username.
	ErrUsernameTaken = errors.New("users: username already exists")
	// ErrInvalidAccount indicates username or password input that fails validation.
	ErrInvalidAccount = errors.New("users: invalid account input")

	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	Logger     *zap.Logger
	HashCost   int
	CacheTTL   time.Duration
	CacheSweep time.Duration
}

// Service registers and authenticates users.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	logger   *zap.Logger
	hashCost int
	cache    *cache.Cache
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hashCost := cfg.HashCost
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = usernameCacheTTL
	}
	sweep := cfg.CacheSweep
	if sweep <= 0 {
		sweep = usernameCacheCleanup
	}
	return &Service{
		db:       cfg.Database,
		now:      clock,
		logger:   logger,
		hashCost: hashCost,
		cache:    cache.New(ttl, sweep),
	}, nil
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	username = normalize(username)
	if err := validateCredentials(username, password); err != nil {
		return User{}, err
	}

	if _, err := s.lookup(ctx, username); err == nil {
		return User{}, ErrUsernameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		Username:     username,
		PasswordHash: string(hash),
		LastSeenAt:   s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if s.isDuplicateKey(err) {
			return User{}, ErrUsernameTaken
		}
		return User{}, err
	}
	s.remember(user)
	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Authenticate verifies the password and returns the matching account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	username = normalize(username)
	if username == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	user, err := s.lookup(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	seenAt := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", user.ID).
		Update("last_seen_at", seenAt).
		Error; err != nil {
		s.logger.Warn("failed to record user activity", zap.Int64("user_id", user.ID), zap.Error(err))
	} else {
		user.LastSeenAt = seenAt
	}
	s.remember(user)
	return user, nil
}

// EnsureUser returns the account for username, creating it with an unusable password when absent.
// It backs the development identity.
func (s *Service) EnsureUser(ctx context.Context, username string) (int64, error) {
	username = normalize(username)
	if username == "" {
		return 0, ErrInvalidAccount
	}
	user, err := s.lookup(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = User{Username: username, LastSeenAt: s.now().UTC()}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return 0, err
		}
		s.logger.Info("development user created", zap.Int64("user_id", user.ID), zap.String("username", username))
	} else if err != nil {
		return 0, err
	}

	s.remember(user)
	return user.ID, nil
}

// lookup serves accounts from the cache and falls back to the database on a miss.
func (s *Service) lookup(ctx context.Context, username string) (User, error) {
	if cached, ok := s.cache.Get(username); ok {
		if user, ok := cached.(User); ok {
			return user, nil
		}
	}
	user, err := s.findByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	s.remember(user)
	return user, nil
}

func (s *Service) findByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	return user, err
}

func (s *Service) remember(user User) {
	s.cache.Set(user.Username, user, cache.DefaultExpiration)
}

func (s *Service) isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	translator, ok := s.db.Dialector.(gorm.ErrorTranslator)
	return ok && errors.Is(translator.Translate(err), gorm.ErrDuplicatedKey)
}

func validateCredentials(username, password string) error {
	err := validation.Errors{
		"username": validation.Validate(username,
			validation.Required,
			validation.Length(minUsernameLength, maxUsernameLength),
			validation.Match(usernamePattern)),
		"password": validation.Validate(password,
			validation.Required,
			validation.Length(minPasswordLength, maxPasswordLength)),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	return nil
}
