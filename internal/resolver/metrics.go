package resolver

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bavix/scanbridge/internal/metrics"
)

// MetricsResolver records resolution counts and latency.
type MetricsResolver struct{ Next Resolver }

func (m *MetricsResolver) Resolve(ctx context.Context, code string) (ResolvedProduct, error) {
	start := time.Now()

	out, err := m.Next.Resolve(ctx, code)
	metrics.M.ResolveDuration.Observe(time.Since(start).Seconds())

	if out.Match != "" {
		metrics.RecordResolution(string(out.Match))

		zerolog.Ctx(ctx).Debug().
			Str("code", out.Code).
			Str("match", string(out.Match)).
			Float64("confidence", out.Confidence).
			Msg("product resolved")
	}

	return out, err
}
