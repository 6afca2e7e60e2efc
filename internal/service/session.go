package service

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/dtroode/accounts-server/internal/model"
)

// sessionIssuer mints and checks session/update token pairs.
type sessionIssuer struct {
	tokens model.TokenGenerator
	ttl    time.Duration
	now    func() time.Time
}

// issue replaces the session triple on user with a fresh pair expiring
// ttl from now. Both tokens are drawn independently from the generator.
func (s *sessionIssuer) issue(user *model.User) error {
	session, err := s.tokens.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate session token: %w", err)
	}

	update, err := s.tokens.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate update token: %w", err)
	}

	if session == update || session == user.SessionToken || update == user.UpdateToken {
		return fmt.Errorf("token generator repeated a value: %w", &model.ConflictError{Field: model.FieldSessionToken})
	}

	now := s.now()
	user.SessionToken = session
	user.UpdateToken = update
	user.SessionExpiration = now.Add(s.ttl)
	user.UpdatedAt = now

	return nil
}

// clear invalidates both tokens and expires the session immediately.
func (s *sessionIssuer) clear(user *model.User) {
	now := s.now()
	user.SessionToken = ""
	user.UpdateToken = ""
	user.SessionExpiration = now
	user.UpdatedAt = now
}

// valid reports whether token is the user's current, unexpired session token.
func (s *sessionIssuer) valid(user model.User, token string) bool {
	match := tokensEqual(user.SessionToken, token)
	fresh := s.now().Before(user.SessionExpiration)
	return match && fresh
}

func tokensEqual(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
