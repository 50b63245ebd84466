package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	db, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(ctx, db, SQLite))

	s := New(db, SQLite)
	require.NoError(t, s.Insert(ctx, authcore.Account{
		ID:          "u1",
		Login:       "alice",
		DisplayName: "Alice",
		Contact:     "alice@example.com",
		Active:      true,
	}))
	return s
}

func TestSQLiteFindAndUpdate(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	account, err := s.FindByLogin(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "u1", account.ID)
	assert.True(t, account.Active)
	assert.Nil(t, account.LockExpiresAt)

	expires := time.Date(2024, 6, 1, 8, 30, 0, 42, time.UTC)
	require.NoError(t, s.UpdateByID(ctx, "u1", authcore.Fields{
		authcore.FieldLockEnabled:   true,
		authcore.FieldLockExpiresAt: expires,
		authcore.FieldLoginAttempts: 0,
	}))

	account, err = s.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, account.LockEnabled)
	require.NotNil(t, account.LockExpiresAt)
	assert.True(t, account.LockExpiresAt.Equal(expires))

	require.NoError(t, s.UpdateByID(ctx, "u1", authcore.Fields{authcore.FieldLockExpiresAt: nil}))
	account, err = s.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, account.LockExpiresAt)

	missing, err := s.FindByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteUpdateErrors(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	err := s.UpdateByID(ctx, "ghost", authcore.Fields{authcore.FieldVerified: true})
	assert.ErrorIs(t, err, authcore.ErrAccountNotFound)

	err = s.UpdateByID(ctx, "u1", authcore.Fields{"login = 'x'; --": true})
	assert.ErrorIs(t, err, authcore.ErrInvalidArgument)
}

func TestSQLiteIncrementFailedAttempts(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		n, err := s.IncrementFailedAttempts(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	_, err := s.IncrementFailedAttempts(ctx, "ghost")
	assert.ErrorIs(t, err, authcore.ErrAccountNotFound)
}

func TestSQLiteFindByCredentials(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		creds map[string]string
		found bool
	}{
		{name: "username", creds: map[string]string{"username": "alice", "password": "x"}, found: true},
		{name: "contact", creds: map[string]string{"contact": "alice@example.com"}, found: true},
		{name: "mismatch", creds: map[string]string{"login": "alice", "id": "u2"}, found: false},
		{name: "secret only", creds: map[string]string{"password": "x"}, found: false},
		{name: "unknown key", creds: map[string]string{"login": "alice", "org": "x"}, found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := s.FindByCredentials(ctx, tt.creds)
			require.NoError(t, err)
			assert.Equal(t, tt.found, account != nil)
		})
	}
}

func TestSQLiteRememberToken(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateByID(ctx, "u1", authcore.Fields{authcore.FieldRememberToken: "digest"}))

	account, err := s.FindByRememberToken(ctx, "u1", "digest")
	require.NoError(t, err)
	assert.NotNil(t, account)

	account, err = s.FindByRememberToken(ctx, "u1", "")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestSQLiteChannels(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddNotificationChannel(ctx, "u1", authcore.NotificationChannel{
		Kind: authcore.ChannelMail, Address: "alice@example.com", Verified: true, Default: true,
	}))
	require.NoError(t, s.AddNotificationChannel(ctx, "u1", authcore.NotificationChannel{
		Kind: authcore.ChannelText, Address: "+15551234567", Default: true,
	}))

	channels, err := s.NotificationChannels(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, authcore.ChannelMail, channels[0].Kind)
	assert.False(t, channels[0].Default)
	assert.True(t, channels[1].Default)

	err = s.AddNotificationChannel(ctx, "ghost", authcore.NotificationChannel{Kind: authcore.ChannelMail})
	assert.ErrorIs(t, err, authcore.ErrAccountNotFound)
}

func TestPostgresPlaceholders(t *testing.T) {
	s := New(nil, Postgres)
	got := s.q(`update t set a = ?, b = ? where id = ?`)
	assert.Equal(t, `update t set a = $1, b = $2 where id = $3`, got)
}

func TestPostgresUpdateByIDQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, Postgres)
	mock.ExpectExec(regexp.QuoteMeta(`update authcore_accounts set lock_enabled = $1, login_attempts = $2 where id = $3`)).
		WithArgs(false, 0, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.UpdateByID(context.Background(), "u1", authcore.Fields{
		authcore.FieldLoginAttempts: 0,
		authcore.FieldLockEnabled:   false,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateByIDNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, Postgres)
	mock.ExpectExec("update authcore_accounts").WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.UpdateByID(context.Background(), "ghost", authcore.Fields{authcore.FieldVerified: true})
	assert.ErrorIs(t, err, authcore.ErrAccountNotFound)
}

func TestPostgresStoreErrorPropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	s := New(db, Postgres)
	mock.ExpectQuery(regexp.QuoteMeta(`where login = $1 limit 1`)).WithArgs("alice").WillReturnError(boom)

	_, err = s.FindByLogin(context.Background(), "alice")
	assert.ErrorIs(t, err, boom)
}

func TestPostgresIncrementReturning(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, Postgres)
	mock.ExpectQuery(regexp.QuoteMeta(`set login_attempts = login_attempts + 1 where id = $1 returning login_attempts`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts"}).AddRow(4))
	mock.ExpectQuery("returning login_attempts").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	n, err := s.IncrementFailedAttempts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = s.IncrementFailedAttempts(context.Background(), "ghost")
	assert.ErrorIs(t, err, authcore.ErrAccountNotFound)
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db, SQLite))
	require.NoError(t, Migrate(ctx, db, SQLite))

	var tables int
	require.NoError(t, db.QueryRowContext(ctx,
		`select count(*) from sqlite_master where type = 'table' and name like 'authcore_%'`).Scan(&tables))
	assert.Equal(t, 2, tables)
}
