package data

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/maplego/client/internal/component"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// AccountEntry is one account in accounts.yaml. Either PasswordHash (bcrypt)
// or Password (plain text, hashed on load) must be set.
type AccountEntry struct {
	ID           uint32    `yaml:"id"`
	Name         string    `yaml:"name"`
	PasswordHash string    `yaml:"password_hash,omitempty"`
	Password     string    `yaml:"password,omitempty"`
	Gender       byte      `yaml:"gender"`
	Grade        byte      `yaml:"grade"`
	CountryCode  byte      `yaml:"country_code"`
	Banned       bool      `yaml:"banned"`
	BanReason    byte      `yaml:"ban_reason"`
	BannedUntil  time.Time `yaml:"banned_until,omitempty"`
	CreatedAt    time.Time `yaml:"created_at,omitempty"`
}

// AccountTable is an in-memory account store backed by a YAML file. It is
// the login stub's store when no database is configured.
type AccountTable struct {
	mu       sync.Mutex
	path     string
	accounts map[string]*component.Account
	nextID   uint32
}

// LoadAccountTable loads accounts.yaml. A missing file yields an empty table
// that is created on the first Create.
func LoadAccountTable(path string) (*AccountTable, error) {
	t := &AccountTable{
		path:     path,
		accounts: make(map[string]*component.Account),
		nextID:   1,
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read account list: %w", err)
	}
	var entries []AccountEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse account list: %w", err)
	}
	for i := range entries {
		e := &entries[i]
		name := strings.ToLower(e.Name)
		if name == "" {
			return nil, fmt.Errorf("account list entry %d: empty name", i)
		}
		if _, dup := t.accounts[name]; dup {
			return nil, fmt.Errorf("account list: duplicate name %q", name)
		}
		hash := e.PasswordHash
		if hash == "" {
			// The file already holds this password in clear text.
			h, err := bcrypt.GenerateFromPassword([]byte(e.Password), bcrypt.MinCost)
			if err != nil {
				return nil, fmt.Errorf("account %s: hash password: %w", name, err)
			}
			hash = string(h)
		}
		id := e.ID
		if id == 0 {
			id = t.nextID
		}
		t.nextID = max(t.nextID, id+1)
		t.accounts[name] = &component.Account{
			ID:           id,
			Name:         name,
			PasswordHash: hash,
			Gender:       e.Gender,
			Grade:        e.Grade,
			CountryCode:  e.CountryCode,
			Banned:       e.Banned,
			BanReason:    e.BanReason,
			BannedUntil:  e.BannedUntil,
			CreatedAt:    e.CreatedAt,
		}
	}
	return t, nil
}

// Load returns a copy of the named account, or nil, nil if there is none.
func (t *AccountTable) Load(_ context.Context, name string) (*component.Account, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	acc, ok := t.accounts[strings.ToLower(name)]
	if !ok {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

// Create adds an account and rewrites the YAML file.
func (t *AccountTable) Create(_ context.Context, name, rawPassword, ip string) (*component.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	name = strings.ToLower(name)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.accounts[name]; dup {
		return nil, fmt.Errorf("account %s already exists", name)
	}
	acc := &component.Account{
		ID:           t.nextID,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
		LastIP:       ip,
	}
	t.nextID++
	t.accounts[name] = acc
	if err := t.saveLocked(); err != nil {
		delete(t.accounts, name)
		t.nextID--
		return nil, err
	}
	cp := *acc
	return &cp, nil
}

func (t *AccountTable) ValidatePassword(hash string, rawPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawPassword)) == nil
}

// ClaimOnline marks the account online unless it already is. It reports
// false when another connection holds the account.
func (t *AccountTable) ClaimOnline(_ context.Context, name string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	acc, ok := t.accounts[strings.ToLower(name)]
	if !ok {
		return false, fmt.Errorf("account %s not found", name)
	}
	if acc.Online {
		return false, nil
	}
	acc.Online = true
	return true, nil
}

// UpdateLastActive records a login time and address. Like the online flag
// it is not written back to the file.
func (t *AccountTable) UpdateLastActive(_ context.Context, name, ip string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	acc, ok := t.accounts[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("account %s not found", name)
	}
	acc.LastActive = time.Now().UTC()
	acc.LastIP = ip
	return nil
}

// SetOnline is kept in memory only.
func (t *AccountTable) SetOnline(_ context.Context, name string, online bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	acc, ok := t.accounts[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("account %s not found", name)
	}
	acc.Online = online
	return nil
}

// Count returns the number of accounts loaded.
func (t *AccountTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.accounts)
}

func (t *AccountTable) saveLocked() error {
	entries := make([]AccountEntry, 0, len(t.accounts))
	for _, acc := range t.accounts {
		entries = append(entries, AccountEntry{
			ID:           acc.ID,
			Name:         acc.Name,
			PasswordHash: acc.PasswordHash,
			Gender:       acc.Gender,
			Grade:        acc.Grade,
			CountryCode:  acc.CountryCode,
			Banned:       acc.Banned,
			BanReason:    acc.BanReason,
			BannedUntil:  acc.BannedUntil,
			CreatedAt:    acc.CreatedAt,
		})
	}
	slices.SortFunc(entries, func(a, b AccountEntry) int { return cmp.Compare(a.ID, b.ID) })

	out, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode account list: %w", err)
	}
	if err := os.WriteFile(t.path, out, 0o600); err != nil {
		return fmt.Errorf("write account list: %w", err)
	}
	return nil
}
