package reconcile

import (
	"github.com/robfig/cron/v3"

	"github.com/Coffee-Network/coffee_ledger/internal/metrics"
	"github.com/Coffee-Network/coffee_ledger/pkg/logger"
)

// Sweeper periodically reports the reconciliation backlog.
type Sweeper struct {
	journal *Journal
	metrics *metrics.Metrics
	log     *logger.Logger
	cron    *cron.Cron
}

// NewSweeper creates a sweeper over the given journal. metrics may be nil.
func NewSweeper(journal *Journal, m *metrics.Metrics, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("reconcile")
	}
	return &Sweeper{
		journal: journal,
		metrics: m,
		log:     log,
		cron:    cron.New(),
	}
}

// Start schedules the sweep and begins running it.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc("@every 1m", s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the sweep schedule.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	pending := s.journal.Pending()
	if s.metrics != nil {
		s.metrics.SetOrphanedTransfers(len(pending))
	}
	if len(pending) == 0 {
		return
	}
	for _, o := range pending {
		s.log.WithFields(map[string]any{
			"orphan_id": o.ID,
			"account":   o.Account,
			"amount":    o.Amount,
			"age":       o.CreatedAt,
		}).Error("transfer committed without record write; manual reconciliation required")
	}
}
