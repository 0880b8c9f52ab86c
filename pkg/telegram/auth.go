package telegram

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
)

// Identity is the kind of the active Telegram identity.
type Identity string

const (
	IdentityUser Identity = "user"
	IdentityBot  Identity = "bot"
)

// AuthError means both credential paths are exhausted. It is fatal: startup
// halts and the operator is told why each path failed.
type AuthError struct {
	UserErr error
	BotErr  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: user: %v; bot: %v", e.UserErr, e.BotErr)
}

var (
	errNoUserCredentials = errors.New("user credentials not configured")
	errNoBotToken        = errors.New("bot token not configured")
	errFellBack          = errors.New("user auth disabled after bot fallback")
)

// authState is the two-state identity machine. The user→bot fallback is a
// single irreversible transition for the life of the process: once taken,
// user authentication is never attempted again in this run.
type authState struct {
	mu       sync.Mutex
	identity Identity
	fellBack bool
}

func newAuthState() *authState {
	return &authState{identity: IdentityUser}
}

func (s *authState) canTryUser() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.fellBack
}

func (s *authState) fallBack() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fellBack {
		return errors.New("bot fallback already taken")
	}
	s.fellBack = true
	s.identity = IdentityBot
	return nil
}

// restore sets the state from a persisted session without counting a
// transition, e.g. when a stored bot session is still valid at startup.
func (s *authState) restore(ident Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = ident
	if ident == IdentityBot {
		s.fellBack = true
	}
}

func (s *authState) current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

type loginFunc func(context.Context) error

// runAuthFlow drives the state machine: try the user path unless the
// fallback transition was already taken, then try the bot path exactly once.
// Either login func may be nil when its credentials are not configured.
func runAuthFlow(ctx context.Context, st *authState, userLogin, botLogin loginFunc) (Identity, error) {
	var userErr error
	switch {
	case userLogin == nil:
		userErr = errNoUserCredentials
	case !st.canTryUser():
		userErr = errFellBack
	default:
		if userErr = userLogin(ctx); userErr == nil {
			return IdentityUser, nil
		}
	}

	if botLogin == nil {
		return "", &AuthError{UserErr: userErr, BotErr: errNoBotToken}
	}
	if st.canTryUser() {
		if err := st.fallBack(); err != nil {
			return "", err
		}
	}
	if botErr := botLogin(ctx); botErr != nil {
		return "", &AuthError{UserErr: userErr, BotErr: botErr}
	}
	return IdentityBot, nil
}
