package social

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"sync"

	"github.com/google/uuid"
)

func accountKey(provider, providerUserID string) string {
	return provider + "|" + providerUserID
}

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*LinkedAccount
	findErr  error
	linkErr  error
	saves    []*LinkedAccount
	unlinks  []string
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: map[string]*LinkedAccount{}}
}

func (m *memAccounts) FindByProviderID(ctx context.Context, provider, providerUserID string) (*LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if account, ok := m.accounts[accountKey(provider, providerUserID)]; ok {
		return account, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memAccounts) FindByUserID(ctx context.Context, userID string) ([]*LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*LinkedAccount
	for _, account := range m.accounts {
		if account.UserID == userID {
			out = append(out, account)
		}
	}
	return out, nil
}

func (m *memAccounts) Link(ctx context.Context, account *LinkedAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.linkErr != nil {
		return m.linkErr
	}
	key := accountKey(account.Provider, account.ProviderUserID)
	if existing, ok := m.accounts[key]; ok && existing.UserID != account.UserID {
		return ErrIdentityTaken.Clone()
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	m.accounts[key] = account
	return nil
}

func (m *memAccounts) SaveTokens(ctx context.Context, account *LinkedAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, account)
	m.accounts[accountKey(account.Provider, account.ProviderUserID)] = account
	return nil
}

func (m *memAccounts) Unlink(ctx context.Context, userID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlinks = append(m.unlinks, userID+"|"+provider)
	for key, account := range m.accounts {
		if account.UserID == userID && account.Provider == provider {
			delete(m.accounts, key)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memAccounts) DeleteForUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, account := range m.accounts {
		if account.UserID == userID {
			delete(m.accounts, key)
		}
	}
	return nil
}

type memUsers struct {
	mu        sync.Mutex
	byID      map[string]*User
	byEmail   map[string]*User
	created   []*User
	createErr error
}

func newMemUsers(users ...*User) *memUsers {
	m := &memUsers{byID: map[string]*User{}, byEmail: map[string]*User{}}
	for _, user := range users {
		m.add(user)
	}
	return m
}

func (m *memUsers) add(user *User) {
	m.byID[user.ID.String()] = user
	if user.Email != "" {
		m.byEmail[user.Email] = user
	}
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.byID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memUsers) Create(ctx context.Context, user *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	m.created = append(m.created, user)
	m.add(user)
	return user, nil
}

type stubProvider struct {
	name         string
	authBase     string
	token        *Token
	profile      *Profile
	authErr      error
	availableErr error
	exchangeErr  error
	userInfoErr  error
	refreshed    *Token
	refreshErr   error
	lastState    string
	lastCode     string
	lastOpts     ExchangeConfig
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) Available(ctx context.Context) error {
	return p.availableErr
}

func (p *stubProvider) AuthCodeURL(ctx context.Context, state string, opts ...AuthCodeOption) (string, error) {
	if p.authErr != nil {
		return "", p.authErr
	}
	p.lastState = state
	return p.authBase + "?state=" + url.QueryEscape(state), nil
}

func (p *stubProvider) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	p.lastCode = code
	p.lastOpts = ApplyExchangeOptions(opts...)
	return p.token, nil
}

func (p *stubProvider) UserInfo(ctx context.Context, token *Token) (*Profile, error) {
	if p.userInfoErr != nil {
		return nil, p.userInfoErr
	}
	return p.profile, nil
}

func (p *stubProvider) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	if p.refreshed != nil {
		return p.refreshed, nil
	}
	return nil, errors.New("refresh not supported")
}

type stubTokenService struct {
	token string
	err   error
}

func (s stubTokenService) Generate(identity Identity) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

type memSink struct {
	mu     sync.Mutex
	events []ActivityEvent
	err    error
}

func (m *memSink) Record(event ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}
