package jobs

import (
	"context"
	"log"
	"time"
)

// expiredSweeper is the orchestrator capability this job drives
type expiredSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// TransferExpiryJob sweeps transfers whose expiry passed into their terminal
// phase, guaranteeing stranded locks are eventually released
type TransferExpiryJob struct {
	sweeper  expiredSweeper
	interval time.Duration
	stop     chan struct{}
}

func NewTransferExpiryJob(sweeper expiredSweeper, interval time.Duration) *TransferExpiryJob {
	return &TransferExpiryJob{
		sweeper:  sweeper,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (j *TransferExpiryJob) Start(ctx context.Context) {
	log.Println("🕐 Starting transfer expiry sweep job...")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Transfer expiry sweep stopped (context cancelled)")
			return
		case <-j.stop:
			log.Println("⏹️ Transfer expiry sweep stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *TransferExpiryJob) Stop() {
	close(j.stop)
}

func (j *TransferExpiryJob) sweep(ctx context.Context) {
	swept, err := j.sweeper.SweepExpired(ctx)
	if err != nil {
		log.Printf("❌ Error sweeping expired transfers: %v", err)
		return
	}
	if swept > 0 {
		log.Printf("✅ Swept %d expired transfers", swept)
	}
}
