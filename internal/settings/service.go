// Package settings exposes typed accessors over the key-value settings table.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

const (
	KeyDefaultCurrency = "default_currency"
	KeyDefaultAccount  = "default_account_id"
	KeyBudgetAlerts    = "budget_alerts_enabled"
	KeyLastBackupAt    = "last_backup_at"
)

// Store is the key-value persistence behind the service.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
	AllSettings(ctx context.Context) (map[string]string, error)
}

// Service is constructed once at startup and shared by its consumers.
type Service struct {
	store            Store
	fallbackCurrency string
}

func NewService(store Store, fallbackCurrency string) *Service {
	if fallbackCurrency == "" {
		fallbackCurrency = "EUR"
	}
	return &Service{store: store, fallbackCurrency: strings.ToUpper(fallbackCurrency)}
}

func (s *Service) get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, ok, nil
}

// DefaultCurrency returns the configured ISO currency code.
func (s *Service) DefaultCurrency(ctx context.Context) (string, error) {
	v, ok, err := s.get(ctx, KeyDefaultCurrency)
	if err != nil || !ok {
		return s.fallbackCurrency, err
	}
	return v, nil
}

func (s *Service) SetDefaultCurrency(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return core.ValidationError("set default currency", "currency must be a 3-letter code")
	}
	return s.Set(ctx, KeyDefaultCurrency, code)
}

// DefaultAccount returns the account preselected for new transactions.
func (s *Service) DefaultAccount(ctx context.Context) (int64, bool, error) {
	v, ok, err := s.get(ctx, KeyDefaultAccount)
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.WarnContext(ctx, "Ignoring malformed default account setting", "value", v)
		return 0, false, nil
	}
	return id, true, nil
}

func (s *Service) SetDefaultAccount(ctx context.Context, id int64) error {
	if id <= 0 {
		return core.ValidationError("set default account", "account id must be positive")
	}
	return s.Set(ctx, KeyDefaultAccount, strconv.FormatInt(id, 10))
}

// BudgetAlertsEnabled defaults to true.
func (s *Service) BudgetAlertsEnabled(ctx context.Context) (bool, error) {
	v, ok, err := s.get(ctx, KeyBudgetAlerts)
	if err != nil || !ok {
		return true, err
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true, nil
	}
	return enabled, nil
}

func (s *Service) SetBudgetAlertsEnabled(ctx context.Context, enabled bool) error {
	return s.Set(ctx, KeyBudgetAlerts, strconv.FormatBool(enabled))
}

// LastBackupAt returns the zero time when no backup was taken.
func (s *Service) LastBackupAt(ctx context.Context) (time.Time, error) {
	v, ok, err := s.get(ctx, KeyLastBackupAt)
	if err != nil || !ok {
		return time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, nil
	}
	return at, nil
}

func (s *Service) SetLastBackupAt(ctx context.Context, at time.Time) error {
	return s.Set(ctx, KeyLastBackupAt, at.UTC().Format(time.RFC3339))
}

// Set stores a raw value. Known keys are validated through their typed setter
// rules.
func (s *Service) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return core.ValidationError("set setting", "key is required")
	}
	if err := validate(key, value); err != nil {
		return err
	}
	if err := s.store.SetSetting(ctx, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	slog.InfoContext(ctx, "Setting updated", "key", key)
	return nil
}

func validate(key, value string) error {
	const op = "set setting"
	switch key {
	case KeyDefaultCurrency:
		if len(value) != 3 || strings.ToUpper(value) != value {
			return core.ValidationError(op, "currency must be a 3-letter upper-case code")
		}
	case KeyDefaultAccount:
		if id, err := strconv.ParseInt(value, 10, 64); err != nil || id <= 0 {
			return core.ValidationError(op, "account id must be a positive integer")
		}
	case KeyBudgetAlerts:
		if _, err := strconv.ParseBool(value); err != nil {
			return core.ValidationError(op, "value must be true or false")
		}
	case KeyLastBackupAt:
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			return core.ValidationError(op, "value must be an RFC 3339 time")
		}
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.store.DeleteSetting(ctx, key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

func (s *Service) All(ctx context.Context) (map[string]string, error) {
	all, err := s.store.AllSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return all, nil
}
