// Package historian drains the game action queue into durable storage in batches, and marks
// games abandoned once their action stream goes quiet.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Source yields queued actions. ok is false when nothing arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (action models.GameAction, ok bool, err error)
}

// Sink persists actions.
type Sink interface {
	InsertGameActions(ctx context.Context, actions []models.GameAction) error
	MarkGameAbandoned(ctx context.Context, gameID uuid.UUID) error
}

// RedisSource pops JSON-encoded actions from a Redis list with BLPop.
type RedisSource struct {
	rdb   *redis.Client
	queue string
}

func NewRedisSource(rdb *redis.Client, queue string) *RedisSource {
	return &RedisSource{rdb: rdb, queue: queue}
}

func (r *RedisSource) Pop(ctx context.Context, timeout time.Duration) (models.GameAction, bool, error) {
	res, err := r.rdb.BLPop(ctx, timeout, r.queue).Result()
	if errors.Is(err, redis.Nil) {
		return models.GameAction{}, false, nil
	}
	if err != nil {
		return models.GameAction{}, false, err
	}
	// res[0] is the queue name and res[1] the payload
	if len(res) < 2 {
		return models.GameAction{}, false, nil
	}
	var action models.GameAction
	if err := json.Unmarshal([]byte(res[1]), &action); err != nil {
		return models.GameAction{}, false, &DecodeError{Payload: res[1], Err: err}
	}
	return action, true, nil
}

// DecodeError is a queue entry that is not a valid action. It is logged and dropped.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string { return "invalid action record: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	BatchSize  int
	FlushDelay time.Duration
	Inactivity time.Duration // a game with no actions for this long is abandoned
	PopTimeout time.Duration
	Logger     logrus.FieldLogger
}

// Service batches actions from a Source into a Sink.
type Service struct {
	source Source
	sink   Sink
	opts   Options
	log    logrus.FieldLogger

	batchMu sync.Mutex
	batch   []models.GameAction

	activityMu   sync.Mutex
	lastActivity map[uuid.UUID]time.Time
	now          func() time.Time
}

func NewService(source Source, sink Sink, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	if opts.Inactivity <= 0 {
		opts.Inactivity = 10 * time.Minute
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 3 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		source:       source,
		sink:         sink,
		opts:         opts,
		log:          logger.WithField("component", "historian"),
		batch:        make([]models.GameAction, 0, opts.BatchSize),
		lastActivity: make(map[uuid.UUID]time.Time),
		now:          time.Now,
	}
}

// Run consumes until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("historian started")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.flushLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.inactivityLoop(ctx)
	}()

	s.readLoop(ctx)
	wg.Wait()

	// ctx is done; give the last flush its own deadline
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.log.Info("historian stopped")
}

func (s *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		action, ok, err := s.source.Pop(ctx, s.opts.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				s.log.WithError(err).Warn("dropping queue entry")
				continue
			}
			s.log.WithError(err).Error("pop failed")
			// back off so a dead queue does not spin
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			continue
		}
		s.Add(ctx, action)
	}
}

// Add records activity for the action's game and queues it, flushing when the batch is full.
func (s *Service) Add(ctx context.Context, action models.GameAction) {
	s.activityMu.Lock()
	if action.ActionType == "game_end" {
		delete(s.lastActivity, action.GameID)
	} else {
		s.lastActivity[action.GameID] = s.now()
	}
	s.activityMu.Unlock()

	s.batchMu.Lock()
	s.batch = append(s.batch, action)
	full := len(s.batch) >= s.opts.BatchSize
	s.batchMu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush writes the pending batch. On failure the batch is put back for the next attempt.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := make([]models.GameAction, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.sink.InsertGameActions(ctx, pending); err != nil {
		s.log.WithError(err).Errorf("failed to flush %d actions", len(pending))
		s.batchMu.Lock()
		s.batch = append(pending, s.batch...)
		s.batchMu.Unlock()
		return
	}
	s.log.Debugf("flushed %d actions", len(pending))
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

func (s *Service) inactivityLoop(ctx context.Context) {
	interval := min(time.Minute, s.opts.Inactivity)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepInactive(ctx)
		}
	}
}

// SweepInactive marks every game quiet for longer than the inactivity threshold as abandoned.
func (s *Service) SweepInactive(ctx context.Context) {
	now := s.now()
	var stale []uuid.UUID
	s.activityMu.Lock()
	for id, last := range s.lastActivity {
		if now.Sub(last) > s.opts.Inactivity {
			stale = append(stale, id)
			delete(s.lastActivity, id)
		}
	}
	s.activityMu.Unlock()

	// pending actions of a stale game must land before it is marked
	if len(stale) > 0 {
		s.Flush(ctx)
	}
	for _, id := range stale {
		if err := s.sink.MarkGameAbandoned(ctx, id); err != nil {
			s.log.WithError(err).Warnf("failed to mark game %s abandoned", id)
			continue
		}
		s.log.WithField("game_id", id).Info("marked game abandoned due to inactivity")
	}
}
