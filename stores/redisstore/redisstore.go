// Package redisstore keeps accounts in Redis.
//
// Each account is a hash at "<prefix>:acct:<id>". String keys
// "<prefix>:login:<login>" and "<prefix>:contact:<contact>" index the
// account id, and "<prefix>:chan:<id>" is a list of JSON-encoded
// notification channels.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
)

var (
	// ErrRedisUnavailable wraps transport and protocol failures.
	ErrRedisUnavailable = errors.New("account redis unavailable")
	// ErrDuplicateLogin is returned by Put when another account owns the login.
	ErrDuplicateLogin = errors.New("login already taken")
	// ErrCorruptAccount is returned when a stored hash cannot be decoded.
	ErrCorruptAccount = errors.New("account record corrupt")
)

const (
	hID          = "id"
	hLogin       = "login"
	hDisplayName = "display_name"
	hContact     = "contact"
	hActive      = "active"
)

// updateAccountLua writes field/value pairs only when the account exists.
// KEYS[1] = account hash
// ARGV    = field, value, field, value, ...
const updateAccountScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {err='not_found'}
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`

var updateAccountLua = redis.NewScript(updateAccountScript)

// incrementAttemptsLua increments the failure counter of an existing account.
const incrementAttemptsScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {err='not_found'}
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
`

var incrementAttemptsLua = redis.NewScript(incrementAttemptsScript)

// Store is an authcore.Store backed by go-redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New builds a Store. An empty prefix defaults to "authcore".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "authcore"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) accountKey(id string) string { return s.prefix + ":acct:" + id }
func (s *Store) loginKey(login string) string { return s.prefix + ":login:" + login }
func (s *Store) contactKey(c string) string { return s.prefix + ":contact:" + c }
func (s *Store) channelKey(id string) string { return s.prefix + ":chan:" + id }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// Put inserts or replaces an account and its indexes. The login index is
// watched so two accounts never claim the same login.
func (s *Store) Put(ctx context.Context, account authcore.Account) error {
	if account.ID == "" || account.Login == "" {
		return fmt.Errorf("%w: account id and login required", authcore.ErrInvalidArgument)
	}

	accountKey := s.accountKey(account.ID)
	loginKey := s.loginKey(account.Login)

	txf := func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, loginKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && owner != account.ID {
			return ErrDuplicateLogin
		}

		prev, err := tx.HMGet(ctx, accountKey, hLogin, hContact).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if old, ok := prev[0].(string); ok && old != account.Login {
				pipe.Del(ctx, s.loginKey(old))
			}
			if old, ok := prev[1].(string); ok && old != "" && old != account.Contact {
				pipe.Del(ctx, s.contactKey(old))
			}
			pipe.HSet(ctx, accountKey, encodeAccount(&account))
			pipe.Set(ctx, loginKey, account.ID, 0)
			if account.Contact != "" {
				pipe.Set(ctx, s.contactKey(account.Contact), account.ID, 0)
			}
			return nil
		})
		return err
	}

	err := s.redis.Watch(ctx, txf, loginKey, accountKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateLogin):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: concurrent update of login %q", ErrDuplicateLogin, account.Login)
	default:
		return unavailable(err)
	}
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.Account, error) {
	values, err := s.redis.HGetAll(ctx, s.accountKey(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return decodeAccount(values)
}

func (s *Store) FindByLogin(ctx context.Context, login string) (*authcore.Account, error) {
	return s.findByIndex(ctx, s.loginKey(login))
}

func (s *Store) findByIndex(ctx context.Context, key string) (*authcore.Account, error) {
	id, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return s.FindByID(ctx, id)
}

// FindByCredentials resolves a candidate through the id, login, or contact
// key and then checks every other non-secret key against it.
func (s *Store) FindByCredentials(ctx context.Context, credentials map[string]string) (*authcore.Account, error) {
	query := map[string]string{}
	for key, value := range credentials {
		if authcore.IsSecretKey(key) {
			continue
		}
		attr, ok := authcore.LookupAttribute(key)
		if !ok {
			return nil, nil
		}
		query[attr] = value
	}

	var (
		account *authcore.Account
		err     error
	)
	switch {
	case query[authcore.LookupID] != "":
		account, err = s.FindByID(ctx, query[authcore.LookupID])
	case query[authcore.LookupLogin] != "":
		account, err = s.FindByLogin(ctx, query[authcore.LookupLogin])
	case query[authcore.LookupContact] != "":
		account, err = s.findByIndex(ctx, s.contactKey(query[authcore.LookupContact]))
	default:
		return nil, nil
	}
	if err != nil || account == nil {
		return nil, err
	}

	for attr, value := range query {
		var got string
		switch attr {
		case authcore.LookupID:
			got = account.ID
		case authcore.LookupLogin:
			got = account.Login
		case authcore.LookupContact:
			got = account.Contact
		}
		if got != value {
			return nil, nil
		}
	}
	return account, nil
}

func (s *Store) FindByRememberToken(ctx context.Context, id, tokenDigest string) (*authcore.Account, error) {
	if tokenDigest == "" {
		return nil, nil
	}
	account, err := s.FindByID(ctx, id)
	if err != nil || account == nil {
		return nil, err
	}
	if account.RememberTokenDigest != tokenDigest {
		return nil, nil
	}
	return account, nil
}

// UpdateByID validates fields before writing and applies them in one
// script call, so a rejected update writes nothing.
func (s *Store) UpdateByID(ctx context.Context, id string, fields authcore.Fields) error {
	args, err := encodeFields(fields)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}

	err = updateAccountLua.Run(ctx, s.redis, []string{s.accountKey(id)}, args...).Err()
	if err != nil {
		if err.Error() == "not_found" {
			return authcore.ErrAccountNotFound
		}
		return unavailable(err)
	}
	return nil
}

func (s *Store) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	n, err := incrementAttemptsLua.Run(ctx, s.redis, []string{s.accountKey(id)}, authcore.FieldLoginAttempts).Int()
	if err != nil {
		if err.Error() == "not_found" {
			return 0, authcore.ErrAccountNotFound
		}
		return 0, unavailable(err)
	}
	return n, nil
}

type channelRecord struct {
	Kind     authcore.ChannelKind `json:"kind"`
	Address  string               `json:"address"`
	Verified bool                 `json:"verified"`
	Default  bool                 `json:"default"`
}

// AddNotificationChannel appends channel under an optimistic transaction.
// A default channel clears the flag on the others.
func (s *Store) AddNotificationChannel(ctx context.Context, accountID string, channel authcore.NotificationChannel) error {
	accountKey := s.accountKey(accountID)
	listKey := s.channelKey(accountID)

	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, accountKey).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return authcore.ErrAccountNotFound
		}

		existing, err := s.readChannels(ctx, tx, listKey)
		if err != nil {
			return err
		}
		if channel.Default {
			for i := range existing {
				existing[i].Default = false
			}
		}
		existing = append(existing, channel)

		encoded := make([]any, 0, len(existing))
		for _, c := range existing {
			raw, err := json.Marshal(channelRecord(c))
			if err != nil {
				return err
			}
			encoded = append(encoded, string(raw))
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, listKey)
			pipe.RPush(ctx, listKey, encoded...)
			return nil
		})
		return err
	}

	err := s.redis.Watch(ctx, txf, accountKey, listKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authcore.ErrAccountNotFound):
		return err
	default:
		return unavailable(err)
	}
}

func (s *Store) NotificationChannels(ctx context.Context, accountID string) ([]authcore.NotificationChannel, error) {
	out, err := s.readChannels(ctx, s.redis, s.channelKey(accountID))
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *Store) readChannels(ctx context.Context, c redis.Cmdable, key string) ([]authcore.NotificationChannel, error) {
	raw, err := c.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]authcore.NotificationChannel, 0, len(raw))
	for _, item := range raw {
		var rec channelRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("%w: channel: %v", ErrCorruptAccount, err)
		}
		out = append(out, authcore.NotificationChannel(rec))
	}
	return out, nil
}

func encodeAccount(a *authcore.Account) map[string]any {
	return map[string]any{
		hID:                                 a.ID,
		hLogin:                              a.Login,
		hDisplayName:                        a.DisplayName,
		hContact:                            a.Contact,
		hActive:                             encodeBool(a.Active),
		authcore.FieldPassword:              a.SecretDigest,
		authcore.FieldLockEnabled:           encodeBool(a.LockEnabled),
		authcore.FieldLockExpiresAt:         encodeTime(a.LockExpiresAt),
		authcore.FieldLoginAttempts:         strconv.Itoa(a.FailedAttempts),
		authcore.FieldRememberToken:         a.RememberTokenDigest,
		authcore.FieldVerified:              encodeBool(a.Verified),
		authcore.FieldVerificationToken:     a.VerificationDigest,
		authcore.FieldVerificationExpiresAt: encodeTime(a.VerificationExpiresAt),
	}
}

// encodeFields validates fields by applying them to a scratch account and
// returns HSET arguments for the keys present.
func encodeFields(fields authcore.Fields) ([]any, error) {
	var scratch authcore.Account
	if err := scratch.Apply(fields); err != nil {
		return nil, err
	}

	all := encodeAccount(&scratch)
	args := make([]any, 0, 2*len(fields))
	for key := range fields {
		args = append(args, key, all[key])
	}
	return args, nil
}

func decodeAccount(values map[string]string) (*authcore.Account, error) {
	a := &authcore.Account{
		ID:                  values[hID],
		Login:               values[hLogin],
		DisplayName:         values[hDisplayName],
		Contact:             values[hContact],
		Active:              values[hActive] == "1",
		SecretDigest:        values[authcore.FieldPassword],
		LockEnabled:         values[authcore.FieldLockEnabled] == "1",
		RememberTokenDigest: values[authcore.FieldRememberToken],
		Verified:            values[authcore.FieldVerified] == "1",
		VerificationDigest:  values[authcore.FieldVerificationToken],
	}

	var err error
	if raw := values[authcore.FieldLoginAttempts]; raw != "" {
		if a.FailedAttempts, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("%w: login_attempts: %v", ErrCorruptAccount, err)
		}
	}
	if a.LockExpiresAt, err = decodeTime(values[authcore.FieldLockExpiresAt]); err != nil {
		return nil, err
	}
	if a.VerificationExpiresAt, err = decodeTime(values[authcore.FieldVerificationExpiresAt]); err != nil {
		return nil, err
	}
	return a, nil
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func encodeTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}

func decodeTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrCorruptAccount, err)
	}
	t := time.Unix(0, n).UTC()
	return &t, nil
}
