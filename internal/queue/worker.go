package queue

import (
	"context"
	"sync"
	"time"

	"github.com/reliefops/disburse/internal/config"
	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/notification"
	"github.com/reliefops/disburse/internal/observability/metrics"
	regdomain "github.com/reliefops/disburse/internal/registration/domain"
	"github.com/reliefops/disburse/internal/scope"
	txdomain "github.com/reliefops/disburse/internal/transaction/domain"
	"go.uber.org/zap"
)

const dequeueTimeout = 5 * time.Second

// Worker drains provider queues and settles every job into exactly one
// ledger row: success, waiting, or error. Retryable failures go back on the
// queue until the provider's attempt budget runs out.
type Worker struct {
	queue         *Queue
	registry      *fsp.Registry
	payout        *config.PayoutConfigHolder
	registrations regdomain.Service
	transactions  txdomain.Service
	dispatcher    notification.Dispatcher
	log           *zap.Logger

	wg sync.WaitGroup
}

func NewWorker(
	queue *Queue,
	registry *fsp.Registry,
	payout *config.PayoutConfigHolder,
	registrations regdomain.Service,
	transactions txdomain.Service,
	dispatcher notification.Dispatcher,
	log *zap.Logger,
) *Worker {
	return &Worker{
		queue:         queue,
		registry:      registry,
		payout:        payout,
		registrations: registrations,
		transactions:  transactions,
		dispatcher:    dispatcher,
		log:           log.Named("queue.worker"),
	}
}

// Start launches the per-provider worker goroutines and returns.
func (w *Worker) Start(ctx context.Context) {
	cfg := w.payout.Get()
	for _, provider := range w.registry.Providers() {
		concurrency := cfg.Provider(provider).WorkerConcurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		w.log.Info("starting workers",
			zap.String("provider", provider),
			zap.Int("concurrency", concurrency),
		)
		for i := 0; i < concurrency; i++ {
			w.wg.Add(1)
			go w.loop(ctx, provider)
		}
	}
}

// Wait blocks until every worker goroutine has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context, provider string) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, raw, err := w.queue.Dequeue(ctx, provider, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("dequeue failed", zap.String("provider", provider), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if env == nil {
			continue
		}
		w.process(ctx, env, raw)
	}
}

func (w *Worker) process(ctx context.Context, env *Envelope, raw string) {
	start := time.Now()
	log := w.log.With(
		zap.String("provider", env.Provider),
		zap.String("reference_id", env.ReferenceID),
		zap.Int("payment_nr", env.PaymentNr),
		zap.String("correlation_id", env.CorrelationID),
		zap.Int("attempt", env.Attempt),
	)

	integration, err := w.registry.Get(env.Provider)
	if err != nil {
		log.Error("unknown provider on queue", zap.Error(err))
		w.storeOutcome(ctx, env, fsp.Result{Status: fsp.StatusError, Message: err.Error()})
		w.settle(ctx, env, raw, log)
		return
	}

	result, err := integration.SendPayment(ctx, env.PaymentJob)
	metrics.Payment().JobDuration.WithLabelValues(env.Provider).Observe(time.Since(start).Seconds())

	if err != nil {
		maxAttempts := w.payout.Get().Provider(env.Provider).MaxJobAttempts
		if fsp.Retryable(err) && env.Attempt+1 < maxAttempts {
			log.Warn("job failed, retrying", zap.Error(err))
			metrics.Payment().JobRetriesTotal.WithLabelValues(env.Provider).Inc()
			if requeueErr := w.queue.Requeue(ctx, env, raw); requeueErr != nil {
				log.Error("requeue failed", zap.Error(requeueErr))
			}
			return
		}

		log.Error("job failed", zap.Error(err))
		metrics.Payment().JobsTotal.WithLabelValues(env.Provider, fsp.StatusError).Inc()
		w.storeOutcome(ctx, env, fsp.Result{Status: fsp.StatusError, Message: err.Error()})
		w.settle(ctx, env, raw, log)
		return
	}

	metrics.Payment().JobsTotal.WithLabelValues(env.Provider, result.Status).Inc()
	w.storeOutcome(ctx, env, result)
	w.dispatchNotifications(ctx, env, result, log)
	w.settle(ctx, env, raw, log)
	log.Info("job done", zap.String("status", result.Status))
}

func (w *Worker) settle(ctx context.Context, env *Envelope, raw string, log *zap.Logger) {
	if err := w.queue.Settle(ctx, env, raw); err != nil {
		log.Error("settle failed", zap.Error(err))
	}
}

func (w *Worker) storeOutcome(ctx context.Context, env *Envelope, result fsp.Result) {
	amount := result.CalculatedAmount
	if amount == 0 {
		amount = env.Amount
	}
	tx := &txdomain.Transaction{
		ReferenceID:  env.ReferenceID,
		ProgramID:    env.ProgramID,
		PaymentNr:    env.PaymentNr,
		Provider:     env.Provider,
		Status:       result.Status,
		Amount:       amount,
		ErrorMessage: result.Message,
		Step:         txdomain.StepPayout,
		MessageSID:   result.MessageSID,
	}
	if registration, err := w.registrations.Get(ctx, env.ReferenceID, scope.All()); err == nil {
		tx.RegistrationID = registration.ID
		tx.Scope = registration.Scope
	}
	if err := w.transactions.Store(ctx, tx); err != nil {
		w.log.Error("could not store transaction",
			zap.String("reference_id", env.ReferenceID),
			zap.Error(err),
		)
	}
}

func (w *Worker) dispatchNotifications(ctx context.Context, env *Envelope, result fsp.Result, log *zap.Logger) {
	if len(result.Notifications) == 0 {
		return
	}
	registration, err := w.registrations.Get(ctx, env.ReferenceID, scope.All())
	if err != nil {
		log.Warn("cannot notify, registration not found", zap.Error(err))
		return
	}
	for _, n := range result.Notifications {
		if _, err := w.dispatcher.EnqueueMessage(ctx, registration, n.TemplateKey, n.DynamicParams); err != nil {
			log.Warn("notification enqueue failed",
				zap.String("template", n.TemplateKey),
				zap.Error(err),
			)
		}
	}
}
