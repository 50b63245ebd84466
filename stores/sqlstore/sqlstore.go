// Package sqlstore is an authcore.Store over database/sql.
//
// The same queries run on PostgreSQL through the pgx stdlib driver and on
// SQLite through modernc.org/sqlite; only placeholders differ. Timestamps
// are stored as Unix nanoseconds.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
)

const accountColumns = `id, login, display_name, contact, active, password, lock_enabled, lock_expires_at,
	login_attempts, remember_token, verified, verification_token, verification_expires_at`

var lookupColumns = map[string]string{
	authcore.LookupID:      "id",
	authcore.LookupLogin:   "login",
	authcore.LookupContact: "contact",
}

// Store implements authcore.Store, authcore.FailureCounter, and
// authcore.ChannelStore.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// q rewrites "?" placeholders for the dialect.
func (s *Store) q(query string) string {
	if s.dialect == SQLite {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Insert adds a new account.
func (s *Store) Insert(ctx context.Context, a authcore.Account) error {
	if a.ID == "" || a.Login == "" {
		return fmt.Errorf("%w: account id and login required", authcore.ErrInvalidArgument)
	}
	_, err := s.db.ExecContext(ctx, s.q(`insert into authcore_accounts (`+accountColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.Login, a.DisplayName, a.Contact, a.Active, a.SecretDigest,
		a.LockEnabled, nanos(a.LockExpiresAt), a.FailedAttempts, a.RememberTokenDigest,
		a.Verified, a.VerificationDigest, nanos(a.VerificationExpiresAt),
	)
	return err
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.Account, error) {
	return s.findOne(ctx, `id = ?`, id)
}

func (s *Store) FindByLogin(ctx context.Context, login string) (*authcore.Account, error) {
	return s.findOne(ctx, `login = ?`, login)
}

// FindByCredentials matches every non-secret key. Keys are applied in
// sorted order so the generated SQL is stable.
func (s *Store) FindByCredentials(ctx context.Context, credentials map[string]string) (*authcore.Account, error) {
	keys := make([]string, 0, len(credentials))
	for k := range credentials {
		if !authcore.IsSecretKey(k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		attr, ok := authcore.LookupAttribute(k)
		if !ok {
			return nil, nil
		}
		clauses = append(clauses, lookupColumns[attr]+" = ?")
		args = append(args, credentials[k])
	}
	return s.findOne(ctx, strings.Join(clauses, " and "), args...)
}

func (s *Store) FindByRememberToken(ctx context.Context, id, tokenDigest string) (*authcore.Account, error) {
	if tokenDigest == "" {
		return nil, nil
	}
	return s.findOne(ctx, `id = ? and remember_token = ?`, id, tokenDigest)
}

func (s *Store) findOne(ctx context.Context, where string, args ...any) (*authcore.Account, error) {
	row := s.db.QueryRowContext(ctx, s.q(`select `+accountColumns+` from authcore_accounts where `+where+` limit 1`), args...)

	var (
		a            authcore.Account
		lockExpires  sql.NullInt64
		verifExpires sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.Login, &a.DisplayName, &a.Contact, &a.Active, &a.SecretDigest,
		&a.LockEnabled, &lockExpires, &a.FailedAttempts, &a.RememberTokenDigest,
		&a.Verified, &a.VerificationDigest, &verifExpires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.LockExpiresAt = fromNanos(lockExpires)
	a.VerificationExpiresAt = fromNanos(verifExpires)
	return &a, nil
}

// UpdateByID writes fields in a single statement. Field names are the
// column names; they are validated before any SQL is built.
func (s *Store) UpdateByID(ctx context.Context, id string, fields authcore.Fields) error {
	var scratch authcore.Account
	if err := scratch.Apply(fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		sets = append(sets, k+" = ?")
		args = append(args, columnValue(&scratch, k))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, s.q(`update authcore_accounts set `+strings.Join(sets, ", ")+` where id = ?`), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

func columnValue(a *authcore.Account, field string) any {
	switch field {
	case authcore.FieldLockEnabled:
		return a.LockEnabled
	case authcore.FieldLockExpiresAt:
		return nanos(a.LockExpiresAt)
	case authcore.FieldLoginAttempts:
		return a.FailedAttempts
	case authcore.FieldRememberToken:
		return a.RememberTokenDigest
	case authcore.FieldPassword:
		return a.SecretDigest
	case authcore.FieldVerified:
		return a.Verified
	case authcore.FieldVerificationToken:
		return a.VerificationDigest
	case authcore.FieldVerificationExpiresAt:
		return nanos(a.VerificationExpiresAt)
	}
	return nil
}

func (s *Store) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.q(`update authcore_accounts set login_attempts = login_attempts + 1 where id = ? returning login_attempts`), id,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, authcore.ErrAccountNotFound
	}
	return n, err
}

// AddNotificationChannel appends channel in a transaction. A default
// channel clears the flag on the account's other channels.
func (s *Store) AddNotificationChannel(ctx context.Context, accountID string, channel authcore.NotificationChannel) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, s.q(`select count(*) from authcore_accounts where id = ?`), accountID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return authcore.ErrAccountNotFound
	}

	if channel.Default {
		if _, err = tx.ExecContext(ctx, s.q(`update authcore_channels set is_default = ? where account_id = ?`), false, accountID); err != nil {
			return err
		}
	}

	var next int
	err = tx.QueryRowContext(ctx, s.q(`select coalesce(max(position), -1) + 1 from authcore_channels where account_id = ?`), accountID).Scan(&next)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		s.q(`insert into authcore_channels (account_id, position, kind, address, verified, is_default) values (?, ?, ?, ?, ?, ?)`),
		accountID, next, string(channel.Kind), channel.Address, channel.Verified, channel.Default,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) NotificationChannels(ctx context.Context, accountID string) ([]authcore.NotificationChannel, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`select kind, address, verified, is_default from authcore_channels where account_id = ? order by position`), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authcore.NotificationChannel
	for rows.Next() {
		var (
			c    authcore.NotificationChannel
			kind string
		)
		if err := rows.Scan(&kind, &c.Address, &c.Verified, &c.Default); err != nil {
			return nil, err
		}
		c.Kind = authcore.ChannelKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}
