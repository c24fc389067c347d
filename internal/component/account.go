package component

import "time"

// Account is a login-server account as the stub sees it, independent of
// whether it came from PostgreSQL or the YAML table.
type Account struct {
	ID           uint32
	Name         string
	PasswordHash string // bcrypt
	Gender       byte
	Grade        byte // GM level, 0 = player
	CountryCode  byte
	Banned       bool
	BanReason    byte      // 0 = permanent
	BannedUntil  time.Time // meaningful when Banned
	Online       bool
	CreatedAt    time.Time
	LastActive   time.Time // last successful login
	LastIP       string
}

// BanActive reports whether a ban is in force at now. A permanent ban never
// lifts; a temporary one ends at BannedUntil.
func (a *Account) BanActive(now time.Time) bool {
	if !a.Banned {
		return false
	}
	if a.BanReason == 0 || a.BannedUntil.IsZero() {
		return true
	}
	return now.Before(a.BannedUntil)
}
