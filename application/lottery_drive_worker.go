package application

import (
	"context"
	"time"

	"blocklotto/infrastructure/observability"

	log "github.com/sirupsen/logrus"
)

// LotteryDriveWorker advances every active lottery on a fixed interval
type LotteryDriveWorker struct {
	service  *LotteryService
	interval time.Duration
	metrics  *observability.MetricsProvider
}

// NewLotteryDriveWorker creates a new drive worker
func NewLotteryDriveWorker(service *LotteryService, interval time.Duration, metrics *observability.MetricsProvider) *LotteryDriveWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &LotteryDriveWorker{
		service:  service,
		interval: interval,
		metrics:  metrics,
	}
}

// Start begins the drive loop and returns a function that stops it
func (w *LotteryDriveWorker) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.WithField("interval", w.interval).Info("Lottery drive worker started")

		for {
			w.RunOnce(ctx)

			select {
			case <-ctx.Done():
				log.Info("Lottery drive worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Lottery drive worker shutting down (stop requested)...")
				return
			case <-time.After(w.interval):
			}
		}
	}()

	return func() {
		close(stopChan)
		<-done
	}
}

// RunOnce advances each active lottery in its own transaction. A failure on
// one lottery is logged and does not stop the others.
func (w *LotteryDriveWorker) RunOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		w.metrics.RecordDriveDuration(time.Since(start))
	}()

	ids, err := w.service.ActiveLotteryIDs(ctx)
	if err != nil {
		log.Errorf("Failed to list active lotteries: %v", err)
		return
	}
	if len(ids) == 0 {
		log.Debug("No active lotteries to advance")
		return
	}

	var advanced, waiting, failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}

		result, err := w.service.Advance(ctx, id)
		if err != nil {
			log.WithError(err).WithField("lotteryID", id).Error("Failed to advance lottery")
			failed++
			continue
		}

		if result.Changed() {
			advanced++
			log.WithFields(log.Fields{
				"lotteryID": id,
				"from":      result.From,
				"to":        result.To,
				"tipHeight": result.TipHeight,
			}).Info("Lottery advanced")
		}
		if result.Waiting != "" {
			waiting++
			log.WithFields(log.Fields{
				"lotteryID": id,
				"phase":     result.To,
				"waiting":   result.Waiting,
			}).Debug("Lottery waiting")
		}
	}

	log.WithFields(log.Fields{
		"active":   len(ids),
		"advanced": advanced,
		"waiting":  waiting,
		"failed":   failed,
	}).Debug("Completed lottery drive pass")
}
