package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// account is one registered user in the provider's state file.
type account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// providerState is the on-disk representation of a LocalProvider.
type providerState struct {
	Accounts      map[string]account `json:"accounts"`
	CurrentUserID string             `json:"current_user_id,omitempty"`
}

// LocalProvider is a self-contained stand-in for a hosted auth service. It
// keeps accounts and the signed-in user in a JSON file so separate CLI
// invocations share one session. An empty path keeps everything in memory.
type LocalProvider struct {
	path string

	mu      sync.Mutex
	state   providerState
	session Session

	subsMu sync.Mutex
	subs   map[int]func(Session)
	nextID int
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates a provider backed by the file at path. The
// provider starts in the loading state until Open is called.
func NewLocalProvider(path string) *LocalProvider {
	return &LocalProvider{
		path:    path,
		state:   providerState{Accounts: make(map[string]account)},
		session: Session{Loading: true},
		subs:    make(map[int]func(Session)),
	}
}

// Open reads the state file (a missing file is an empty state) and publishes
// the resolved session.
func (p *LocalProvider) Open(ctx context.Context) error {
	p.mu.Lock()
	if p.path != "" {
		data, err := os.ReadFile(p.path)
		switch {
		case err == nil:
			var st providerState
			if err := json.Unmarshal(data, &st); err != nil {
				p.mu.Unlock()
				return fmt.Errorf("failed to parse identity state %s: %w", p.path, err)
			}
			if st.Accounts == nil {
				st.Accounts = make(map[string]account)
			}
			p.state = st
		case os.IsNotExist(err):
		default:
			p.mu.Unlock()
			return fmt.Errorf("failed to read identity state: %w", err)
		}
	}
	p.session = Session{User: p.userByID(p.state.CurrentUserID)}
	session := p.session
	p.mu.Unlock()

	p.publish(session)
	return nil
}

// Current implements Provider.
func (p *LocalProvider) Current() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Subscribe implements Provider.
func (p *LocalProvider) Subscribe(fn func(Session)) func() {
	p.subsMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.subsMu.Unlock()

	return func() {
		p.subsMu.Lock()
		delete(p.subs, id)
		p.subsMu.Unlock()
	}
}

// SignUp registers a new account and signs it in.
func (p *LocalProvider) SignUp(ctx context.Context, email, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if len(password) < 6 {
		return ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	p.mu.Lock()
	if _, exists := p.state.Accounts[email]; exists {
		p.mu.Unlock()
		return ErrAccountExists
	}
	acct := account{ID: uuid.NewString(), Email: email, PasswordHash: string(hash)}
	p.state.Accounts[email] = acct
	p.state.CurrentUserID = acct.ID
	p.session = Session{User: &User{ID: acct.ID, Email: acct.Email}}
	session := p.session
	err = p.persist()
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.publish(session)
	return nil
}

// SignIn checks the credentials and makes the account current.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	p.mu.Lock()
	acct, ok := p.state.Accounts[email]
	if !ok || bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		p.mu.Unlock()
		return ErrInvalidCredentials
	}
	p.state.CurrentUserID = acct.ID
	p.session = Session{User: &User{ID: acct.ID, Email: acct.Email}}
	session := p.session
	err = p.persist()
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.publish(session)
	return nil
}

// SignOut clears the current user.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.state.CurrentUserID = ""
	p.session = Session{}
	err := p.persist()
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.publish(Session{})
	return nil
}

func (p *LocalProvider) userByID(id string) *User {
	if id == "" {
		return nil
	}
	for _, acct := range p.state.Accounts {
		if acct.ID == id {
			return &User{ID: acct.ID, Email: acct.Email}
		}
	}
	return nil
}

// persist writes the state file. Caller holds p.mu.
func (p *LocalProvider) persist() error {
	if p.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}
	data, err := json.MarshalIndent(p.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity state: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write identity state: %w", err)
	}
	return nil
}

func (p *LocalProvider) publish(s Session) {
	p.subsMu.Lock()
	fns := make([]func(Session), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.subsMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
