package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"potatoauth/internal/models"

	"github.com/google/uuid"
)

// InMemoryStore is an in-memory implementation of UserRepository and TokenRepository.
// It enforces the same uniqueness and single-consumption rules as the GORM repositories.
type InMemoryStore struct {
	mu           sync.RWMutex
	users        map[string]models.User
	verifyTokens map[string]models.EmailVerifyToken
	sessions     map[string]models.SessionToken
	resetTokens  map[string]models.PasswordResetToken
	now          func() time.Time
}

// NewInMemoryStore creates a new, empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:        make(map[string]models.User),
		verifyTokens: make(map[string]models.EmailVerifyToken),
		sessions:     make(map[string]models.SessionToken),
		resetTokens:  make(map[string]models.PasswordResetToken),
		now:          time.Now,
	}
}

// CreateWithVerifyToken adds the user and its verify token.
func (s *InMemoryStore) CreateWithVerifyToken(_ context.Context, user *models.User, token *models.EmailVerifyToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return fmt.Errorf("failed to create user: %w", ErrDuplicate)
		}
	}
	if _, ok := s.verifyTokens[token.Token]; ok {
		return fmt.Errorf("failed to create user: %w", ErrDuplicate)
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = *user

	token.UserID = user.ID
	token.CreatedAt = now
	s.verifyTokens[token.Token] = *token
	return nil
}

// Delete removes a user and its tokens.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("failed to delete user %s: %w", id, ErrNotFound)
	}
	delete(s.users, id)
	for k, t := range s.verifyTokens {
		if t.UserID == id {
			delete(s.verifyTokens, k)
		}
	}
	for k, t := range s.sessions {
		if t.UserID == id {
			delete(s.sessions, k)
		}
	}
	for k, t := range s.resetTokens {
		if t.UserID == id {
			delete(s.resetTokens, k)
		}
	}
	return nil
}

// GetByID returns a user by ID.
func (s *InMemoryStore) GetByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user with ID %s: %w", id, ErrNotFound)
	}
	return &user, nil
}

// GetByEmail returns a user by email.
func (s *InMemoryStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
}

// GetByUsernameOrEmail returns the user by email when one is given, otherwise by username.
func (s *InMemoryStore) GetByUsernameOrEmail(_ context.Context, username, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if email != "" {
			if user.Email == email {
				return &user, nil
			}
			continue
		}
		if username != "" && user.Username == username {
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user by identifier: %w", ErrNotFound)
}

// ExistsByUsername reports whether the username is taken.
func (s *InMemoryStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// ExistsByEmail reports whether the email is taken.
func (s *InMemoryStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

// GetVerifyTokenByUser returns the verify token owned by userID.
func (s *InMemoryStore) GetVerifyTokenByUser(_ context.Context, userID string) (*models.EmailVerifyToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.verifyTokens {
		if t.UserID == userID {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("verify token of user %s: %w", userID, ErrNotFound)
}

// CreateVerifyToken stores a verify token; one per user.
func (s *InMemoryStore) CreateVerifyToken(_ context.Context, token *models.EmailVerifyToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.verifyTokens[token.Token]; ok {
		return fmt.Errorf("failed to create verify token: %w", ErrDuplicate)
	}
	for _, t := range s.verifyTokens {
		if t.UserID == token.UserID {
			return fmt.Errorf("failed to create verify token: %w", ErrDuplicate)
		}
	}
	token.CreatedAt = s.now()
	s.verifyTokens[token.Token] = *token
	return nil
}

// DeleteVerifyToken removes a verify token.
func (s *InMemoryStore) DeleteVerifyToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.verifyTokens[token]; !ok {
		return fmt.Errorf("failed to delete token: %w", ErrNotFound)
	}
	delete(s.verifyTokens, token)
	return nil
}

// ConsumeVerifyToken removes the token and marks its owner verified.
func (s *InMemoryStore) ConsumeVerifyToken(_ context.Context, token string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	verify, ok := s.verifyTokens[token]
	if !ok {
		return nil, fmt.Errorf("failed to consume verify token: %w", ErrNotFound)
	}
	user, ok := s.users[verify.UserID]
	if !ok {
		return nil, fmt.Errorf("failed to consume verify token: %w", ErrNotFound)
	}
	delete(s.verifyTokens, token)
	user.Verified = true
	user.UpdatedAt = s.now()
	s.users[user.ID] = user
	return &user, nil
}

// CreateSession stores a login session.
func (s *InMemoryStore) CreateSession(_ context.Context, session *models.SessionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.Token]; ok {
		return fmt.Errorf("failed to create session: %w", ErrDuplicate)
	}
	session.CreatedAt = s.now()
	s.sessions[session.Token] = *session
	return nil
}

// GetSession returns a session by token value.
func (s *InMemoryStore) GetSession(_ context.Context, token string) (*models.SessionToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, fmt.Errorf("failed to get session: %w", ErrNotFound)
	}
	return &session, nil
}

// DeleteSession removes the session if userID owns it.
func (s *InMemoryStore) DeleteSession(_ context.Context, token, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok || session.UserID != userID {
		return fmt.Errorf("failed to delete session: %w", ErrNotFound)
	}
	delete(s.sessions, token)
	return nil
}

// GetResetToken returns a reset token with its owner attached.
func (s *InMemoryStore) GetResetToken(_ context.Context, token string) (*models.PasswordResetToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reset, ok := s.resetTokens[token]
	if !ok {
		return nil, fmt.Errorf("failed to get reset token: %w", ErrNotFound)
	}
	if user, ok := s.users[reset.UserID]; ok {
		reset.User = &user
	}
	return &reset, nil
}

// GetResetTokenByUser returns the reset token owned by userID.
func (s *InMemoryStore) GetResetTokenByUser(_ context.Context, userID string) (*models.PasswordResetToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.resetTokens {
		if t.UserID == userID {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("reset token of user %s: %w", userID, ErrNotFound)
}

// CreateResetToken stores a reset token; one per user. A preset CreatedAt is kept.
func (s *InMemoryStore) CreateResetToken(_ context.Context, token *models.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resetTokens[token.Token]; ok {
		return fmt.Errorf("failed to create reset token: %w", ErrDuplicate)
	}
	for _, t := range s.resetTokens {
		if t.UserID == token.UserID {
			return fmt.Errorf("failed to create reset token: %w", ErrDuplicate)
		}
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = s.now()
	}
	stored := *token
	stored.User = nil
	s.resetTokens[token.Token] = stored
	return nil
}

// DeleteResetToken removes a reset token.
func (s *InMemoryStore) DeleteResetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resetTokens[token]; !ok {
		return fmt.Errorf("failed to delete token: %w", ErrNotFound)
	}
	delete(s.resetTokens, token)
	return nil
}

// ResetPassword consumes the reset token and stores the new credentials.
func (s *InMemoryStore) ResetPassword(_ context.Context, token, passwordHash, passwordIdentifier string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset, ok := s.resetTokens[token]
	if !ok {
		return nil, fmt.Errorf("failed to reset password: %w", ErrNotFound)
	}
	user, ok := s.users[reset.UserID]
	if !ok {
		return nil, fmt.Errorf("failed to reset password: %w", ErrNotFound)
	}
	delete(s.resetTokens, token)
	user.PasswordHash = passwordHash
	user.PasswordIdentifier = passwordIdentifier
	user.UpdatedAt = s.now()
	s.users[user.ID] = user
	return &user, nil
}
