package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalkia/sarah-agent/internal/models"
)

// ResolveContext fetches the conversation context for a phone number,
// creating the customer on a lookup miss and retrying the lookup exactly
// once. A second miss is an infrastructure fault, not a recoverable state.
func ResolveContext(ctx context.Context, store Store, phone string) (models.Context, error) {
	cc, err := store.GetContext(ctx, phone, LookupByPhoneNormalized)
	if err == nil {
		return cc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.Context{}, err
	}

	slog.Info("crm.ResolveContext: unknown sender, creating customer", "phone", phone)
	if _, err := store.CreateCustomer(ctx, models.Customer{Phone: phone, PhoneNormalized: phone}); err != nil {
		return models.Context{}, fmt.Errorf("create customer for %s: %w", phone, err)
	}

	cc, err = store.GetContext(ctx, phone, LookupByPhoneNormalized)
	if err != nil {
		return models.Context{}, fmt.Errorf("context lookup after create for %s: %w", phone, err)
	}
	return cc, nil
}
