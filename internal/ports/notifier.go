package ports

import (
	"context"

	"cryptoSignalBot/internal/domain"
)

// Notifier delivers operator-facing alerts. Delivery is best effort; failures are
// logged by the implementation and never returned to the caller.
type Notifier interface {
	Notify(ctx context.Context, severity domain.Severity, title, detail string)
}
