package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/livecaption/internal/wire"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	peerFrameChannel = "peer:%s:frames"
	peerPresenceKey  = "peer:%s:presence"

	presenceTTL = 30 * time.Second
)

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

type subscription struct {
	cancel context.CancelFunc
	pubsub *redis.PubSub
}

func (s *subscription) stop() {
	s.cancel()
	_ = s.pubsub.Close()
}

// Bridge carries frames between relay instances over redis pub/sub and keeps
// peer identities unique across instances.
type Bridge struct {
	redis    *redis.Client
	logger   *slog.Logger
	instance string
	subs     map[string]*subscription
	mu       sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBridge(redisClient *redis.Client, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	instance := uuid.NewString()
	return &Bridge{
		redis:    redisClient,
		logger:   logger.With("component", "bridge", "instance", instance),
		instance: instance,
		subs:     make(map[string]*subscription),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (b *Bridge) Instance() string {
	return b.instance
}

// Claim registers id for this instance. It reports false if another
// instance holds it.
func (b *Bridge) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := b.redis.SetNX(ctx, fmt.Sprintf(peerPresenceKey, id), b.instance, presenceTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim peer id: %w", err)
	}
	return ok, nil
}

func (b *Bridge) Refresh(ctx context.Context, id string) error {
	key := fmt.Sprintf(peerPresenceKey, id)
	return refreshScript.Run(ctx, b.redis, []string{key}, b.instance, presenceTTL.Milliseconds()).Err()
}

func (b *Bridge) Release(ctx context.Context, id string) error {
	key := fmt.Sprintf(peerPresenceKey, id)
	return releaseScript.Run(ctx, b.redis, []string{key}, b.instance).Err()
}

func (b *Bridge) Online(ctx context.Context, id string) (bool, error) {
	n, err := b.redis.Exists(ctx, fmt.Sprintf(peerPresenceKey, id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Publish sends f to the instance holding f.Dst and returns how many
// subscribers received it.
func (b *Bridge) Publish(ctx context.Context, f wire.Frame) (int64, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("marshal frame: %w", err)
	}
	n, err := b.redis.Publish(ctx, fmt.Sprintf(peerFrameChannel, f.Dst), data).Result()
	if err != nil {
		return 0, fmt.Errorf("publish frame: %w", err)
	}
	b.logger.Debug("published frame", "type", string(f.Type), "src", f.Src, "dst", f.Dst, "receivers", n)
	return n, nil
}

// Subscribe delivers frames addressed to id until Unsubscribe. It returns once
// the subscription is active.
func (b *Bridge) Subscribe(ctx context.Context, id string, deliver func(wire.Frame)) error {
	channel := fmt.Sprintf(peerFrameChannel, id)
	subCtx, cancel := context.WithCancel(b.ctx)
	pubsub := b.redis.Subscribe(subCtx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &subscription{cancel: cancel, pubsub: pubsub}
	b.mu.Lock()
	if prev, ok := b.subs[id]; ok {
		prev.stop()
	}
	b.subs[id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go b.receive(subCtx, pubsub, id, deliver)
	return nil
}

func (b *Bridge) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		sub.stop()
		delete(b.subs, id)
	}
}

func (b *Bridge) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bridge) receive(ctx context.Context, pubsub *redis.PubSub, id string, deliver func(wire.Frame)) {
	defer b.wg.Done()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("receive peer frame", "error", err, "peer_id", id)
			return
		}

		var f wire.Frame
		if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
			b.logger.Error("unmarshal peer frame", "error", err, "peer_id", id)
			continue
		}
		deliver(f)
	}
}

func (b *Bridge) Ping(ctx context.Context) error {
	return b.redis.Ping(ctx).Err()
}

func (b *Bridge) Close() error {
	b.cancel()

	b.mu.Lock()
	for id, sub := range b.subs {
		sub.stop()
		delete(b.subs, id)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
