// Package scheduler runs the reconciliation sweeps: canceling dangling
// voucher issue attempts, refreshing voucher and wallet state from the
// providers, reminding beneficiaries, and surfacing wallets that never got
// past provisioning.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reliefops/disburse/internal/clock"
	visadomain "github.com/reliefops/disburse/internal/fsp/visa/domain"
	voucherdomain "github.com/reliefops/disburse/internal/fsp/voucher/domain"
	"github.com/reliefops/disburse/internal/notification"
	obsmetrics "github.com/reliefops/disburse/internal/observability/metrics"
	"github.com/reliefops/disburse/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Locker     *queue.Locker
	Queue      *queue.Queue `optional:"true"`
	VisaSvc    visadomain.Service
	VoucherSvc voucherdomain.Service
	Dispatcher notification.Dispatcher
	Config     Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	locker     *queue.Locker
	queue      *queue.Queue
	visaSvc    visadomain.Service
	voucherSvc voucherdomain.Service
	dispatcher notification.Dispatcher

	lastRuns map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.VisaSvc == nil || p.VoucherSvc == nil || p.Dispatcher == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		locker:     p.Locker,
		queue:      p.Queue,
		visaSvc:    p.VisaSvc,
		voucherSvc: p.VoucherSvc,
		dispatcher: p.Dispatcher,
		lastRuns:   make(map[string]time.Time),
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if s.locker != nil {
		lockKey := "disburse:lock:scheduler:" + name
		token, acquired, err := s.locker.TryLock(ctx, lockKey, timeout+time.Minute)
		if err != nil {
			return fmt.Errorf("%s: acquire lock: %w", name, err)
		}
		if !acquired {
			s.log.Debug("job locked by another instance", zap.String("job", name))
			return nil
		}
		defer func() {
			if releaseErr := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); releaseErr != nil {
				s.log.Warn("lock release failed", zap.String("job", name), zap.Error(releaseErr))
			}
		}()
	}

	log := s.log.With(zap.String("job", name))
	schedMetrics := obsmetrics.Scheduler()

	err := fn(ctx)
	schedMetrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	schedMetrics.JobLastRun.WithLabelValues(name).Set(float64(s.clock.Now().Unix()))

	if err == nil {
		schedMetrics.JobRunsTotal.WithLabelValues(name, "success").Inc()
		return nil
	}

	// treat deadline as soft-timeout
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.JobRunsTotal.WithLabelValues(name, "timeout").Inc()
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
	return fmt.Errorf("%s: %w", name, err)
}

type sweep struct {
	Name     string
	Interval time.Duration
	Run      func(context.Context) error
}

// RunOnce executes every enabled job that is due.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []sweep{
		{"cancel_vouchers", s.cfg.CancelVouchersInterval, s.voucherSvc.CancelPendingIssueRequests},
		{"voucher_balances", s.cfg.VoucherBalancesInterval, s.voucherSvc.UpdateUnusedVouchers},
		{"wallet_details", s.cfg.WalletDetailsInterval, s.visaSvc.UpdateWalletDetails},
		{"voucher_reminders", s.cfg.VoucherRemindersInterval, s.voucherSvc.SendWhatsappReminders},
		{"stuck_wallets", s.cfg.StuckWalletsInterval, s.StuckWalletsJob},
	}
	if s.queue != nil {
		jobs = append(jobs, sweep{"reclaim_jobs", s.cfg.ReclaimJobsInterval, s.reclaimJobs})
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) || !s.isDue(job.Name, job.Interval) {
			continue
		}
		s.lastRuns[job.Name] = s.clock.Now()
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isDue(name string, interval time.Duration) bool {
	last, ok := s.lastRuns[name]
	if !ok {
		return true
	}
	return s.clock.Now().Sub(last) >= interval
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// If EnabledJobs is empty, all jobs are enabled by default (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// reclaimJobs returns payment jobs abandoned by crashed workers to their
// queues so another instance picks them up.
func (s *Scheduler) reclaimJobs(ctx context.Context) error {
	reclaimed, err := s.queue.Reclaim(ctx, s.cfg.ReclaimVisibilityTimeout)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		s.log.Warn("requeued jobs abandoned by dead workers", zap.Int("count", reclaimed))
	}
	return nil
}

// StuckWalletsJob surfaces wallets that were created but never linked to a
// customer within the threshold. Money may be parked on them.
func (s *Scheduler) StuckWalletsJob(ctx context.Context) error {
	wallets, err := s.visaSvc.StuckWallets(ctx, s.cfg.StuckWalletThreshold)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(wallets))
	for _, wallet := range wallets {
		tokens = append(tokens, wallet.TokenCode)
	}
	s.log.Error("wallets stuck before customer link",
		zap.Int("count", len(wallets)),
		zap.Strings("token_codes", tokens),
		zap.Duration("threshold", s.cfg.StuckWalletThreshold),
	)
	return s.dispatcher.OperatorAlert(ctx,
		fmt.Sprintf("%d wallets stuck before customer link", len(wallets)),
		strings.Join(tokens, "\n"),
	)
}
