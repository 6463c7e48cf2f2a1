package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-redis/redis"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/tilinna/clock"
	"golang.org/x/time/rate"

	"github.com/atlassian/gokairos"
	"github.com/atlassian/gokairos/pkg/codec"
	"github.com/atlassian/gokairos/pkg/stats"
	"github.com/atlassian/gokairos/pkg/util"
)

const (
	// InputName is the name of this input.
	InputName = "redis"
	// DefaultAddress is the default address of the Redis server.
	DefaultAddress = "127.0.0.1:6379"
	// DefaultKey is the default list events are popped from.
	DefaultKey = "gokairos:events"
	// DefaultPopTimeout bounds a single BLPOP so shutdown is noticed.
	DefaultPopTimeout = 1 * time.Second
	// DefaultBadEventsPerMinute is how many undecodable list elements are logged per minute.
	DefaultBadEventsPerMinute = 60
)

// Client is the part of the Redis client used by the input.
type Client interface {
	BLPop(timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Input pops JSON events from a Redis list.  Each element is one event or an array of events.
type Input struct {
	eventsReceived uint64 // atomic
	popErrors      uint64 // atomic
	badEvents      stats.ChangeGauge

	logger     logrus.FieldLogger
	client     Client
	key        string
	popTimeout time.Duration
	decoder    *codec.Decoder
	handler    gokairos.EventHandler
	badLimit   *rate.Limiter
}

// NewInputFromViper creates an Input from the "redis" section.
func NewInputFromViper(v *viper.Viper, logger logrus.FieldLogger, handler gokairos.EventHandler) (*Input, error) {
	r := util.GetSubViper(v, "redis")
	r.SetDefault("address", DefaultAddress)
	r.SetDefault("password", "")
	r.SetDefault("db", 0)
	r.SetDefault("key", DefaultKey)
	r.SetDefault("pop-timeout", DefaultPopTimeout)

	client := redis.NewClient(&redis.Options{
		Addr:     r.GetString("address"),
		Password: r.GetString("password"),
		DB:       r.GetInt("db"),
	})
	logger.WithFields(logrus.Fields{
		"address": r.GetString("address"),
		"db":      r.GetInt("db"),
		"key":     r.GetString("key"),
	}).Info("created input")
	return NewInput(logger, client, r.GetString("key"), r.GetDuration("pop-timeout"), handler)
}

// NewInput creates an Input popping from key.
func NewInput(logger logrus.FieldLogger, client Client, key string, popTimeout time.Duration, handler gokairos.EventHandler) (*Input, error) {
	if key == "" {
		return nil, fmt.Errorf("[%s] key is required", InputName)
	}
	if popTimeout <= 0 {
		return nil, fmt.Errorf("[%s] pop-timeout should be positive", InputName)
	}
	return &Input{
		logger:     logger.WithField("input", InputName),
		client:     client,
		key:        key,
		popTimeout: popTimeout,
		decoder:    codec.NewDecoder(),
		handler:    handler,
		badLimit:   rate.NewLimiter(rate.Limit(DefaultBadEventsPerMinute/60.0), 1),
	}, nil
}

// Run pops events until ctx is done.  Redis errors are retried with an exponential backoff.
func (in *Input) Run(ctx context.Context) {
	clck := clock.FromContext(ctx)
	bo := util.NewBackoffFactory(clck, 2, 0.2, 0, 100*time.Millisecond, 0)()
	for ctx.Err() == nil {
		res, err := in.client.BLPop(in.popTimeout, in.key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			atomic.AddUint64(&in.popErrors, 1)
			next := bo.NextBackOff()
			if next == backoff.Stop {
				next = in.popTimeout
			}
			in.logger.WithError(err).WithField("retry-in", next).Warn("Failed to pop from redis")
			timer := clck.NewTimer(next)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		bo.Reset()
		// BLPOP replies with the key and the element.
		if len(res) != 2 {
			in.logger.WithField("reply", res).Warn("Unexpected BLPOP reply")
			continue
		}
		if err := in.handlePayload(ctx, []byte(res[1])); err != nil {
			return
		}
	}
}

// handlePayload decodes and dispatches one list element.  Only dispatch errors are returned.
func (in *Input) handlePayload(ctx context.Context, payload []byte) error {
	events, err := in.decoder.DecodeBatch(payload)
	if err != nil {
		atomic.AddUint64(&in.badEvents.Cur, 1)
		if in.badLimit.Allow() {
			in.logger.WithError(err).Warn("Failed to decode event")
		}
		return nil
	}
	for _, e := range events {
		if err := in.handler.DispatchEvent(ctx, e); err != nil {
			return err
		}
		atomic.AddUint64(&in.eventsReceived, 1)
	}
	return nil
}

// RunMetrics reports the input counters on every flush until ctx is done.
func (in *Input) RunMetrics(ctx context.Context) {
	statser := stats.FromContext(ctx).WithTags(stats.Tags{"input:" + InputName})
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Gauge("input.events_received", float64(atomic.LoadUint64(&in.eventsReceived)), nil)
			statser.Gauge("input.pop_errors", float64(atomic.LoadUint64(&in.popErrors)), nil)
			in.badEvents.SendIfChanged(statser, "input.bad_lines", nil)
		}
	}
}
