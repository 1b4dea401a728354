package ports

import "context"

type EngineMetrics interface {
	SeatActivated(ctx context.Context, reactivated bool)
	SeatRejected(ctx context.Context, reason string)
	SeatsReleased(ctx context.Context, reason string, count int)
	LicenseTransitioned(ctx context.Context, operation string)
}

type NoopMetrics struct{}

func (NoopMetrics) SeatActivated(context.Context, bool)         {}
func (NoopMetrics) SeatRejected(context.Context, string)        {}
func (NoopMetrics) SeatsReleased(context.Context, string, int)  {}
func (NoopMetrics) LicenseTransitioned(context.Context, string) {}
