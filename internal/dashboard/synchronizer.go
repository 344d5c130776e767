// Package dashboard bounds lifecycle recomputation to store changes: it
// listens for persisted-record events and republishes fresh status views
// for every visible schedule.
package dashboard

import (
	"context"
	"time"

	"github.com/polartar/vtvl-engine/internal/event"
	"github.com/polartar/vtvl-engine/internal/lifecycle"
	"github.com/polartar/vtvl-engine/internal/logger"
	"github.com/polartar/vtvl-engine/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// StatusEventType carries a StatusUpdate for the UI layer to render.
const StatusEventType event.EventType = "dashboard.status"

// StatusUpdate maps schedule id to its freshly computed view.
type StatusUpdate map[string]lifecycle.StatusView

type Synchronizer struct {
	store  storage.Storage
	engine *lifecycle.Engine
	bus    *event.Bus
	ec     lifecycle.ExecutionContext

	// interval drives periodic finalization of sent-but-unsettled
	// transactions; status recomputation itself is event-driven.
	interval time.Duration

	statusGauge *prometheus.GaugeVec
}

func NewSynchronizer(
	store storage.Storage,
	engine *lifecycle.Engine,
	bus *event.Bus,
	ec lifecycle.ExecutionContext,
	interval time.Duration,
	promRegistry prometheus.Registerer,
) *Synchronizer {
	s := &Synchronizer{
		store:    store,
		engine:   engine,
		bus:      bus,
		ec:       ec,
		interval: interval,
	}
	if promRegistry != nil {
		s.statusGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_schedules",
			Help: "Visible vesting schedules by lifecycle status",
		}, []string{"status"})
		promRegistry.MustRegister(s.statusGauge)
	}
	return s
}

// Run blocks until the context is cancelled. Every store change triggers a
// recompute of all visible schedules; the ticker additionally settles
// pending transactions whose on-chain result arrived without a user action.
func (s *Synchronizer) Run(ctx context.Context) error {
	vestingSub, vestingCh := s.bus.Subscribe(storage.VestingEventType)
	defer s.bus.Unsubscribe(storage.VestingEventType, vestingSub)
	transactionSub, transactionCh := s.bus.Subscribe(storage.TransactionEventType)
	defer s.bus.Unsubscribe(storage.TransactionEventType, transactionSub)
	contractSub, contractCh := s.bus.Subscribe(storage.ContractEventType)
	defer s.bus.Unsubscribe(storage.ContractEventType, contractSub)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-vestingCh:
			s.refresh(ctx)
		case <-transactionCh:
			s.refresh(ctx)
		case <-contractCh:
			s.refresh(ctx)
		case <-ticker.C:
			if err := s.engine.FinalizePending(ctx, s.ec.OrganizationID); err != nil {
				logger.Warn("finalize pending transactions", zap.Error(err))
			}
			s.refresh(ctx)
		}
	}
}

// refresh recomputes and republishes the status map. A schedule whose facts
// cannot be read keeps its last published view; failures here never mutate
// records.
func (s *Synchronizer) refresh(ctx context.Context) {
	vestings, err := s.store.ListVestings(storage.VestingFilter{
		OrganizationID: s.ec.OrganizationID,
	})
	if err != nil {
		logger.Warn("list vesting schedules", zap.Error(err))
		return
	}

	update := make(StatusUpdate, len(vestings))
	counts := make(map[storage.VestingStatus]int)
	for _, vesting := range vestings {
		view, err := s.engine.StatusFor(ctx, s.ec, vesting.ID)
		if err != nil {
			logger.Warn("compute schedule status",
				zap.String("schedule", vesting.ID),
				zap.Error(err),
			)
			continue
		}
		update[vesting.ID] = *view
		counts[view.Status]++
	}

	if s.statusGauge != nil {
		s.statusGauge.Reset()
		for status, count := range counts {
			s.statusGauge.WithLabelValues(string(status)).Set(float64(count))
		}
	}

	s.bus.Publish(StatusEventType, event.NewEvent(StatusEventType, update))
	logger.Debug("published dashboard statuses", zap.Int("schedules", len(update)))
}
