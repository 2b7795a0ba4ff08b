// Closes open external connections before shutting down Stockpile.
// Inspired from https://medium.com/tokopedia-engineering/gracefully-shutdown-your-go-application-9e7d5c73b5ac

package cleanup

import (
	"Stockpile/pkg/log"
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// operation is a clean up function standard.
type Operation func(ctx context.Context) error

// GracefulShutdown function waits for termination system-calls and performs clean-up operations.
func GracefulShutdown(ctx context.Context, logger log.Logger, timeout time.Duration, operations map[string]Operation) <-chan bool {
	wait := make(chan bool)

	go func() {
		// buffered channel to receive shutdown signal
		s := make(chan os.Signal, 1)
		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		<-s

		logger.Warn().Msg("Graceful shutdown in progress.")

		// Force exit after timeout duration has been elapsed
		force := time.AfterFunc(timeout, func() {
			logger.Warn().Msgf("Timeout of %fs has been elapsed. Forcing shutdown!", timeout.Seconds())
			os.Exit(3)
		})
		defer force.Stop()

		Run(ctx, logger, operations)
		close(wait)
	}()

	return wait
}

// Run executes every cleanup operation concurrently and waits for all of them.
// A failing operation is logged and does not stop the others. Returns the number of failures.
func Run(ctx context.Context, logger log.Logger, operations map[string]Operation) int {
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for opname, op := range operations {
		wg.Add(1)
		go func(opname string, op Operation) {
			defer wg.Done()
			logger.Info().Msgf("Shutting down: %s", opname)
			if err := op(ctx); err != nil {
				logger.Error().Err(err).Msgf("%s shutdown failed.", opname)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			logger.Info().Msgf("%s shutdown completed.", opname)
		}(opname, op)
	}
	wg.Wait()
	return failed
}
