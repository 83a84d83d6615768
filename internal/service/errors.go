package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientStock = errors.New("insufficient quantity")
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrUserNotFound     = errors.New("user not found")
	ErrBuyerNotFound    = errors.New("buyer not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrOrderNotFound    = errors.New("order not found")

	ErrUsernameTaken  = errors.New("username already exists")
	ErrEmailTaken     = errors.New("email already exists")
	ErrCategoryExists = errors.New("category already exists")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Notifier sends fire-and-forget messages. Implementations must not block
// the caller on delivery and never report failure.
type Notifier interface {
	Notify(ctx context.Context, to, template string, data map[string]string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string, map[string]string) {}

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// parseDate accepts an ISO-8601 date or datetime.
func parseDate(field, value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, validationf("%s must be an ISO-8601 date", field)
}
