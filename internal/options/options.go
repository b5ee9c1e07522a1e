// Package options exposes runtime-tunable key-value settings: the emergency
// kill switch and the edit throttle limits. Values live in a store so staff
// can flip them without a deploy; unset keys fall back to registered defaults.
package options

import (
	"context"
	"strconv"

	dErrors "otakudb/pkg/domain-errors"
)

const (
	// KeyEmergencyShutdown blocks every catalog mutation when true.
	KeyEmergencyShutdown = "emergency-shutdown"
	// KeyThrottleMax is the 24h edit limit for ordinary users.
	KeyThrottleMax = "history-throttle-max"
	// KeyThrottleMin is the more lenient 24h edit limit for trusted contributors.
	KeyThrottleMin = "history-throttle-min"
	// KeyGraceDays is the account age below which edits are never self-approved.
	KeyGraceDays = "history-grace-days"
)

// Defaults applied when a key is absent from the store.
func Defaults() map[string]string {
	return map[string]string{
		KeyEmergencyShutdown: "false",
		KeyThrottleMax:       "10",
		KeyThrottleMin:       "50",
		KeyGraceDays:         "7",
	}
}

// Store is the persistence seam; Get reports whether the key was present.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type Service struct {
	store    Store
	defaults map[string]string
}

func New(store Store) *Service {
	return &Service{store: store, defaults: Defaults()}
}

func (s *Service) get(ctx context.Context, key string) (string, error) {
	value, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "read option "+key)
	}
	if ok {
		return value, nil
	}
	if def, ok := s.defaults[key]; ok {
		return def, nil
	}
	return "", dErrors.Newf(dErrors.CodeNotFound, "option %q has no value and no default", key)
}

func (s *Service) Bool(ctx context.Context, key string) (bool, error) {
	raw, err := s.get(ctx, key)
	if err != nil {
		return false, err
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, dErrors.Newf(dErrors.CodeInternal, "option %q is not a bool: %q", key, raw)
	}
	return value, nil
}

func (s *Service) Int(ctx context.Context, key string) (int, error) {
	raw, err := s.get(ctx, key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeInternal, "option %q is not an int: %q", key, raw)
	}
	return value, nil
}

// Set writes through to the store; values are stored as strings.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, key, value); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write option "+key)
	}
	return nil
}
