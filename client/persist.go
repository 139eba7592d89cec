package client

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"

	"github.com/jrsteele09/go-session-auth/users"
)

// DefaultKeyringService is the keyring service name used by authctl
const DefaultKeyringService = "go-session-auth"

// PersistedSession is everything that survives a restart. The access token
// is deliberately absent.
type PersistedSession struct {
	RefreshToken string      `json:"refreshToken"`
	User         *users.User `json:"user"`
}

func (p *PersistedSession) usable() bool {
	return p != nil && p.RefreshToken != "" && p.User != nil
}

// Persister stores the PersistedSession. Load returns nil, nil when nothing
// is stored. Calls are made with the controller lock held, so an
// implementation must not call back into the Controller.
type Persister interface {
	Load() (*PersistedSession, error)
	Save(session *PersistedSession) error
	Clear() error
}

// MemoryPersister keeps the session in process memory only
type MemoryPersister struct {
	mu      sync.Mutex
	session *PersistedSession
}

var _ Persister = (*MemoryPersister)(nil)

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Load() (*PersistedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.clone(), nil
}

func (m *MemoryPersister) Save(session *PersistedSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session.clone()
	return nil
}

func (m *MemoryPersister) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

func (p *PersistedSession) clone() *PersistedSession {
	if p == nil {
		return nil
	}
	return &PersistedSession{RefreshToken: p.RefreshToken, User: p.User.Clone()}
}

// KeyringPersister stores the session as JSON in the OS keyring under
// service/account.
type KeyringPersister struct {
	service string
	account string
}

var _ Persister = (*KeyringPersister)(nil)

func NewKeyringPersister(service, account string) (*KeyringPersister, error) {
	if service == "" || account == "" {
		return nil, errors.New("[NewKeyringPersister] service and account are required")
	}
	return &KeyringPersister{service: service, account: account}, nil
}

func (k *KeyringPersister) Load() (*PersistedSession, error) {
	raw, err := keyring.Get(k.service, k.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "KeyringPersister.Load")
	}
	var session PersistedSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, errors.Wrap(err, "KeyringPersister.Load decode")
	}
	return &session, nil
}

func (k *KeyringPersister) Save(session *PersistedSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "KeyringPersister.Save encode")
	}
	if err := keyring.Set(k.service, k.account, string(raw)); err != nil {
		return errors.Wrap(err, "KeyringPersister.Save")
	}
	return nil
}

func (k *KeyringPersister) Clear() error {
	err := keyring.Delete(k.service, k.account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.Wrap(err, "KeyringPersister.Clear")
	}
	return nil
}
