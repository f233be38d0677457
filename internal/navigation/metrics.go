package navigation

import (
	"context"

	"github.com/dpup/prefab/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dpup/turnbyturn/internal/lib/prompt"
)

const instrumentationName = "github.com/dpup/turnbyturn/internal/navigation"

// metrics uses the global OTel meter provider, which is a no-op unless the host
// configures one.
type metrics struct {
	fixes   metric.Int64Counter
	prompts metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)

	fixes, err := m.Int64Counter(
		"navigation.fixes",
		metric.WithDescription("GPS fixes processed, by status"),
	)
	if err != nil {
		return nil, errors.WrapPrefix(err, "creating fixes counter", 0)
	}

	prompts, err := m.Int64Counter(
		"navigation.prompts",
		metric.WithDescription("Prompt events emitted, by kind"),
	)
	if err != nil {
		return nil, errors.WrapPrefix(err, "creating prompts counter", 0)
	}

	return &metrics{fixes: fixes, prompts: prompts}, nil
}

func (m *metrics) fix(ctx context.Context, status Status) {
	m.fixes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func (m *metrics) prompt(ctx context.Context, kind prompt.EventKind) {
	m.prompts.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
