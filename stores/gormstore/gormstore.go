// Package gormstore is an authcore.Store over GORM.
//
// Open a *gorm.DB with any dialector and call AutoMigrate once:
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	_ = gormstore.AutoMigrate(db)
//	store := gormstore.New(db)
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/MrEthical07/authcore"
)

// AutoMigrate creates or updates the account and channel tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountModel{}, &ChannelModel{})
}

// Store implements authcore.Store, authcore.FailureCounter, and
// authcore.ChannelStore.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, account authcore.Account) error {
	if account.ID == "" || account.Login == "" {
		return fmt.Errorf("%w: account id and login required", authcore.ErrInvalidArgument)
	}
	return s.db.WithContext(ctx).Create(fromAccount(&account)).Error
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.Account, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *Store) FindByLogin(ctx context.Context, login string) (*authcore.Account, error) {
	return s.first(ctx, "login = ?", login)
}

func (s *Store) FindByCredentials(ctx context.Context, credentials map[string]string) (*authcore.Account, error) {
	where := map[string]any{}
	for key, value := range credentials {
		if authcore.IsSecretKey(key) {
			continue
		}
		attr, ok := authcore.LookupAttribute(key)
		if !ok {
			return nil, nil
		}
		where[attr] = value
	}
	if len(where) == 0 {
		return nil, nil
	}

	// LookupAttribute names are also column names.
	return s.first(ctx, where)
}

func (s *Store) FindByRememberToken(ctx context.Context, id, tokenDigest string) (*authcore.Account, error) {
	if tokenDigest == "" {
		return nil, nil
	}
	return s.first(ctx, "id = ? AND remember_token = ?", id, tokenDigest)
}

func (s *Store) first(ctx context.Context, query any, args ...any) (*authcore.Account, error) {
	var model AccountModel
	err := s.db.WithContext(ctx).Where(query, args...).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.toAccount(), nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, fields authcore.Fields) error {
	updates, err := columns(fields)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&AccountModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

func (s *Store) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&AccountModel{}).Where("id = ?", id).
			UpdateColumn("login_attempts", gorm.Expr("login_attempts + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return authcore.ErrAccountNotFound
		}
		return tx.Model(&AccountModel{}).Select("login_attempts").Where("id = ?", id).Row().Scan(&attempts)
	})
	return attempts, err
}

func (s *Store) AddNotificationChannel(ctx context.Context, accountID string, channel authcore.NotificationChannel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&AccountModel{}).Where("id = ?", accountID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return authcore.ErrAccountNotFound
		}

		if channel.Default {
			err := tx.Model(&ChannelModel{}).Where("account_id = ?", accountID).Update("is_default", false).Error
			if err != nil {
				return err
			}
		}

		return tx.Create(&ChannelModel{
			AccountID: accountID,
			Kind:      string(channel.Kind),
			Address:   channel.Address,
			Verified:  channel.Verified,
			IsDefault: channel.Default,
		}).Error
	})
}

func (s *Store) NotificationChannels(ctx context.Context, accountID string) ([]authcore.NotificationChannel, error) {
	var models []ChannelModel
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]authcore.NotificationChannel, 0, len(models))
	for i := range models {
		out = append(out, models[i].toChannel())
	}
	return out, nil
}
