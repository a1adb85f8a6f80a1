package domain

import "context"

// RotatorPort selects, accounts, and repairs credential slots
type RotatorPort interface {
	GetActive(ctx context.Context) (ActiveCredential, error)
	IncrementUsage(ctx context.Context, index int) error
	ReportError(ctx context.Context, index int, httpStatus int) error
	Configure(ctx context.Context, index int, material string) error
	Status(ctx context.Context) ([]SlotStatus, error)
}
