package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"bbqapp-core/internal/geo"
)

// fixTTL bounds how long a persisted last-known fix stays relevant.
const fixTTL = 30 * time.Minute

// RedisProvider is a Provider fed by a Redis pub/sub channel of position
// fixes, with last-known fixes persisted under per-source keys.
type RedisProvider struct {
	client  *redis.Client
	logger  *slog.Logger
	channel string
	ctx     context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewRedisProvider(ctx context.Context, client *redis.Client, logger *slog.Logger, channel string) *RedisProvider {
	return &RedisProvider{
		client:  client,
		logger:  logger,
		channel: channel,
		ctx:     ctx,
	}
}

func (p *RedisProvider) LastKnown(ctx context.Context, source geo.Source) (*geo.PositionFix, error) {
	val, err := p.client.Get(ctx, formatFixKey(source)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting last known fix: %w", err)
	}

	var fix geo.PositionFix
	if err := json.Unmarshal([]byte(val), &fix); err != nil {
		return nil, fmt.Errorf("unmarshalling fix: %w", err)
	}
	return &fix, nil
}

func (p *RedisProvider) RequestUpdates(sink func(geo.PositionFix)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.cancel = cancel

	pubsub := p.client.Subscribe(ctx, p.channel)
	go p.consume(ctx, pubsub, sink)
	return nil
}

func (p *RedisProvider) RemoveUpdates() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return nil
}

func (p *RedisProvider) consume(ctx context.Context, pubsub *redis.PubSub, sink func(geo.PositionFix)) {
	defer func() {
		if err := pubsub.Close(); err != nil {
			p.logger.Warn("failed to close pubsub", "error", err)
		}
	}()

	msgCh := pubsub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				p.logger.Warn("fix channel closed by Redis")
				return
			}
			p.handleMessage(ctx, msg, sink)
		case <-ctx.Done():
			return
		}
	}
}

func (p *RedisProvider) handleMessage(ctx context.Context, msg *redis.Message, sink func(geo.PositionFix)) {
	var fix geo.PositionFix
	if err := json.Unmarshal([]byte(msg.Payload), &fix); err != nil {
		p.logger.Warn("failed to unmarshal fix", "error", err)
		return
	}
	if err := fix.Validate(); err != nil {
		p.logger.Warn("discarding invalid fix", "error", err)
		return
	}

	if err := p.persist(ctx, fix); err != nil {
		p.logger.Warn("failed to persist last known fix", "error", err)
	}
	sink(fix)
}

func (p *RedisProvider) persist(ctx context.Context, fix geo.PositionFix) error {
	data, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("marshalling fix: %w", err)
	}
	return p.client.Set(ctx, formatFixKey(fix.Source), data, fixTTL).Err()
}

func formatFixKey(source geo.Source) string {
	return fmt.Sprintf("location:last:%s", source)
}

var _ Provider = (*RedisProvider)(nil)
