package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client provides profile-scoped Redis storage slots.
// All keys and channels are automatically namespaced with the profile name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb     *redis.Client
	profile string
	origin  string
	quota   int
}

// Option configures a Client.
type Option func(*Client)

// WithQuota limits the size in bytes of a single stored value.
// Zero means unlimited.
func WithQuota(bytes int) Option {
	return func(c *Client) {
		c.quota = bytes
	}
}

// NewClient creates a new storage client for the specified profile.
// Every client gets a fresh origin id, so two clients on the same profile
// behave like two browser tabs sharing one storage area.
//
// Returns an error if profile is empty.
func NewClient(redisOpts *redis.Options, profile string, opts ...Option) (*Client, error) {
	if profile == "" {
		return nil, fmt.Errorf("profile name cannot be empty")
	}

	c := &Client{
		rdb:     redis.NewClient(redisOpts),
		profile: profile,
		origin:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.quota < 0 {
		return nil, fmt.Errorf("quota must be >= 0, got %d", c.quota)
	}

	return c, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Origin returns the id stamped on change events published by this client.
func (c *Client) Origin() string {
	return c.origin
}

// Profile returns the namespace this client reads and writes.
func (c *Client) Profile() string {
	return c.profile
}

// Get returns the raw value stored at key.
// Returns ("", false, nil) if the key doesn't exist.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}

	value, err := c.rdb.Get(ctx, SlotKey(c.profile, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s from Redis: %w", key, err)
	}
	return value, true, nil
}

// Set writes value at key and publishes a change event.
// Returns ErrQuotaExceeded (wrapped) if the value is larger than the quota or
// Redis rejects the write for lack of memory, and ErrNotifyFailure (wrapped)
// if the value was stored but the event could not be published.
func (c *Client) Set(ctx context.Context, key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if c.quota > 0 && len(value) > c.quota {
		return fmt.Errorf("%w: %d bytes for %s exceeds limit of %d", ErrQuotaExceeded, len(value), key, c.quota)
	}

	if err := c.rdb.Set(ctx, SlotKey(c.profile, key), value, 0).Err(); err != nil {
		if isOOM(err) {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("failed to write %s to Redis: %w", key, err)
	}

	return c.publish(ctx, key, &value)
}

// Remove deletes key and publishes a change event if something was deleted.
func (c *Client) Remove(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	deleted, err := c.rdb.Del(ctx, SlotKey(c.profile, key)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete %s from Redis: %w", key, err)
	}
	if deleted == 0 {
		return nil
	}

	return c.publish(ctx, key, nil)
}

// Keys lists the profile's keys starting with prefix, without the namespace.
// Uses SCAN so large profiles do not block the server.
func (c *Client) Keys(ctx context.Context, prefix string) ([]string, error) {
	namespace := SlotPrefix(c.profile)
	pattern := escapeGlob(namespace+prefix) + "*"

	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), namespace))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	return keys, nil
}

func (c *Client) publish(ctx context.Context, key string, value *string) error {
	change := Change{
		Key:    key,
		Value:  value,
		Origin: c.origin,
		AtMs:   time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal change event: %v", ErrNotifyFailure, err)
	}

	if err := c.rdb.Publish(ctx, ChangeEventsChannel(c.profile), payload).Err(); err != nil {
		return fmt.Errorf("%w: failed to publish change event for %s: %v", ErrNotifyFailure, key, err)
	}
	return nil
}

// Subscribe subscribes to change events published by other clients on this
// profile. Events from this client's own writes are dropped.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
//
// The subscription is confirmed before Subscribe returns, so writes made by
// other clients after that point are delivered.
// Events are delivered on a buffered channel (size 10); Redis Pub/Sub is
// at-most-once, so a slow subscriber may miss events.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, ChangeEventsChannel(c.profile))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to change events: %w", err)
	}

	eventsChan := make(chan Change, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				change, err := decodeChange(msg.Payload)
				if err != nil {
					select {
					case errorsChan <- err:
					case <-subCtx.Done():
						return
					}
					continue
				}

				if change.Origin == c.origin {
					continue
				}

				select {
				case eventsChan <- change:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return NewSubscription(eventsChan, errorsChan, cancelFunc), nil
}

func decodeChange(payload string) (Change, error) {
	var change Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return Change{}, fmt.Errorf("failed to unmarshal change event: %w", err)
	}
	if err := change.Validate(); err != nil {
		return Change{}, fmt.Errorf("invalid change event: %w", err)
	}
	return change, nil
}

// isOOM reports whether Redis refused a write because maxmemory was reached.
func isOOM(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM")
}

var _ Backend = (*Client)(nil)
