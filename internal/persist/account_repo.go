package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maplego/client/internal/component"
	"golang.org/x/crypto/bcrypt"
)

// AccountRepo stores login-stub accounts in PostgreSQL.
type AccountRepo struct {
	db *DB
}

func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// Load returns nil, nil when no account has that name.
func (r *AccountRepo) Load(ctx context.Context, name string) (*component.Account, error) {
	var (
		id                     int32
		gender, grade, country int16
		banReason              int16
		bannedUntil            *time.Time
		lastActive             *time.Time
	)
	acc := &component.Account{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, password_hash, gender, grade, country_code,
		        banned, ban_reason, banned_until, online, created_at, last_active, COALESCE(last_ip,'')
		 FROM accounts WHERE name = $1`, name,
	).Scan(
		&id, &acc.Name, &acc.PasswordHash, &gender, &grade, &country,
		&acc.Banned, &banReason, &bannedUntil, &acc.Online, &acc.CreatedAt, &lastActive, &acc.LastIP,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", name, err)
	}
	acc.ID = uint32(id)
	acc.Gender = byte(gender)
	acc.Grade = byte(grade)
	acc.CountryCode = byte(country)
	acc.BanReason = byte(banReason)
	if bannedUntil != nil {
		acc.BannedUntil = *bannedUntil
	}
	if lastActive != nil {
		acc.LastActive = *lastActive
	}
	return acc, nil
}

func (r *AccountRepo) Create(ctx context.Context, name, rawPassword, ip string) (*component.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acc := &component.Account{
		Name:         name,
		PasswordHash: string(hash),
		LastIP:       ip,
	}
	var id int32
	err = r.db.Pool.QueryRow(ctx,
		`INSERT INTO accounts (name, password_hash, last_ip, last_active)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, created_at`,
		acc.Name, acc.PasswordHash, acc.LastIP,
	).Scan(&id, &acc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create account %s: %w", name, err)
	}
	acc.ID = uint32(id)
	return acc, nil
}

func (r *AccountRepo) ValidatePassword(hash string, rawPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawPassword)) == nil
}

func (r *AccountRepo) UpdateLastActive(ctx context.Context, name, ip string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET last_active = NOW(), last_ip = $2 WHERE name = $1`,
		name, ip,
	)
	return err
}

// ClaimOnline marks the account online unless it already is. It reports
// false when another connection holds the account.
func (r *AccountRepo) ClaimOnline(ctx context.Context, name string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET online = TRUE WHERE name = $1 AND NOT online`,
		name,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AccountRepo) SetOnline(ctx context.Context, name string, online bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET online = $2 WHERE name = $1`,
		name, online,
	)
	return err
}

// ResetOnline clears online flags left behind by a previous run.
func (r *AccountRepo) ResetOnline(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE accounts SET online = FALSE WHERE online`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
