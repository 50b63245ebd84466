package gormstore

import (
	"time"

	"github.com/MrEthical07/authcore"
)

// AccountModel is the GORM model for accounts. Column names match the
// authcore.Field* names so UpdateByID can pass fields through.
type AccountModel struct {
	ID                    string `gorm:"primaryKey;size:64"`
	Login                 string `gorm:"size:255;uniqueIndex;not null"`
	DisplayName           string `gorm:"size:255"`
	Contact               string `gorm:"size:255;index"`
	Active                bool
	Password              string
	LockEnabled           bool
	LockExpiresAt         *time.Time
	LoginAttempts         int
	RememberToken         string `gorm:"size:128"`
	Verified              bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time `gorm:"autoCreateTime"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "authcore_accounts"
}

// ChannelModel is the GORM model for notification channels.
type ChannelModel struct {
	ID        uint   `gorm:"primaryKey"`
	AccountID string `gorm:"size:64;index;not null"`
	Kind      string `gorm:"size:16"`
	Address   string `gorm:"size:255"`
	Verified  bool
	IsDefault bool
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ChannelModel) TableName() string {
	return "authcore_channels"
}

func fromAccount(a *authcore.Account) *AccountModel {
	return &AccountModel{
		ID:                    a.ID,
		Login:                 a.Login,
		DisplayName:           a.DisplayName,
		Contact:               a.Contact,
		Active:                a.Active,
		Password:              a.SecretDigest,
		LockEnabled:           a.LockEnabled,
		LockExpiresAt:         a.LockExpiresAt,
		LoginAttempts:         a.FailedAttempts,
		RememberToken:         a.RememberTokenDigest,
		Verified:              a.Verified,
		VerificationToken:     a.VerificationDigest,
		VerificationExpiresAt: a.VerificationExpiresAt,
	}
}

func (m *AccountModel) toAccount() *authcore.Account {
	return &authcore.Account{
		ID:                    m.ID,
		Login:                 m.Login,
		DisplayName:           m.DisplayName,
		Contact:               m.Contact,
		Active:                m.Active,
		SecretDigest:          m.Password,
		LockEnabled:           m.LockEnabled,
		LockExpiresAt:         m.LockExpiresAt,
		FailedAttempts:        m.LoginAttempts,
		RememberTokenDigest:   m.RememberToken,
		Verified:              m.Verified,
		VerificationDigest:    m.VerificationToken,
		VerificationExpiresAt: m.VerificationExpiresAt,
	}
}

func (m *ChannelModel) toChannel() authcore.NotificationChannel {
	return authcore.NotificationChannel{
		Kind:     authcore.ChannelKind(m.Kind),
		Address:  m.Address,
		Verified: m.Verified,
		Default:  m.IsDefault,
	}
}

// columns converts validated fields into a GORM update map.
func columns(fields authcore.Fields) (map[string]any, error) {
	var scratch authcore.Account
	if err := scratch.Apply(fields); err != nil {
		return nil, err
	}

	m := fromAccount(&scratch)
	out := make(map[string]any, len(fields))
	for key := range fields {
		switch key {
		case authcore.FieldLockEnabled:
			out[key] = m.LockEnabled
		case authcore.FieldLockExpiresAt:
			out[key] = m.LockExpiresAt
		case authcore.FieldLoginAttempts:
			out[key] = m.LoginAttempts
		case authcore.FieldRememberToken:
			out[key] = m.RememberToken
		case authcore.FieldPassword:
			out[key] = m.Password
		case authcore.FieldVerified:
			out[key] = m.Verified
		case authcore.FieldVerificationToken:
			out[key] = m.VerificationToken
		case authcore.FieldVerificationExpiresAt:
			out[key] = m.VerificationExpiresAt
		}
	}
	return out, nil
}
