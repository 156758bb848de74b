// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/closemaster/closemaster/internal/models"
)

// Source is the blocking pop side of the Redis queue.
type Source interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Writer persists a batch of rounds.
type Writer interface {
	WriteRounds(ctx context.Context, recs []models.RoundRecord) error
}

// Service drains the round queue into the store in batches. A batch is
// flushed when it reaches BatchSize or when FlushDelay has passed since the
// last flush, whichever comes first.
type Service struct {
	src    Source
	store  Writer
	logger *logrus.Logger

	queue      string
	batchSize  int
	flushDelay time.Duration
	// maxPending bounds how much is held in memory while the store is down.
	maxPending int

	batch     []models.RoundRecord
	lastFlush time.Time
}

func New(src Source, store Writer, logger *logrus.Logger, queue string, batchSize int, flushDelay time.Duration) *Service {
	if batchSize < 1 {
		batchSize = 1
	}
	if flushDelay <= 0 {
		flushDelay = 500 * time.Millisecond
	}
	return &Service{
		src:        src,
		store:      store,
		logger:     logger,
		queue:      queue,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		maxPending: batchSize * 100,
		batch:      make([]models.RoundRecord, 0, batchSize),
	}
}

// Run pops until ctx is cancelled, then flushes what it holds and returns.
func (s *Service) Run(ctx context.Context) error {
	s.lastFlush = time.Now()
	s.logger.WithField("queue", s.queue).Info("historian started")

	for ctx.Err() == nil {
		// BLPop with a bounded timeout so cancellation and timed flushes are handled.
		res, err := s.src.BLPop(ctx, s.flushDelay, s.queue).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			if ctx.Err() != nil {
				break
			}
			s.logger.WithError(err).Error("BLPop failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		case len(res) >= 2:
			// res[0] is the queue name and res[1] the payload.
			s.accept(res[1])
		}

		if len(s.batch) >= s.batchSize || time.Since(s.lastFlush) >= s.flushDelay {
			s.flush(ctx)
		}
	}

	// Final flush on a fresh context; the run context is already done.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(flushCtx)
	s.logger.Info("historian stopped")
	return nil
}

func (s *Service) accept(payload string) {
	var rec models.RoundRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		s.logger.WithError(err).Warn("invalid round record")
		return
	}
	s.batch = append(s.batch, rec)
}

// flush writes the held batch. On failure the batch is kept for the next
// attempt, up to maxPending records.
func (s *Service) flush(ctx context.Context) {
	s.lastFlush = time.Now()
	if len(s.batch) == 0 {
		return
	}
	if err := s.store.WriteRounds(ctx, s.batch); err != nil {
		s.logger.WithError(err).WithField("pending", len(s.batch)).Error("flush rounds failed")
		if over := len(s.batch) - s.maxPending; over > 0 {
			s.logger.WithField("dropped", over).Warn("historian backlog full")
			s.batch = append(s.batch[:0], s.batch[over:]...)
		}
		return
	}
	s.logger.WithField("count", len(s.batch)).Debug("flushed rounds")
	s.batch = make([]models.RoundRecord, 0, s.batchSize)
}
