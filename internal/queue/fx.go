package queue

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/reliefops/disburse/internal/config"
	"go.uber.org/fx"
)

func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

var Module = fx.Module("queue",
	fx.Provide(NewRedisClient),
	fx.Provide(New),
	fx.Provide(NewLocker),
	fx.Provide(NewWorker),
)

// WorkerModule starts the worker pool; only worker-bearing binaries include
// it.
var WorkerModule = fx.Module("queue.run",
	fx.Invoke(runWorker),
)

func runWorker(lc fx.Lifecycle, worker *Worker) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, c := context.WithCancel(context.Background())
			cancel = c
			worker.Start(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			worker.Wait()
			return nil
		},
	})
}
