package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/config"
	"github.com/pmxt-dev/pmxt/internal/exchange"
	"github.com/pmxt-dev/pmxt/internal/publish"
	"github.com/pmxt-dev/pmxt/internal/stream"
)

// bookFeeder is satisfied by adapters exposing their reconciled book
// firehose.
type bookFeeder interface {
	BookFeed(ctx context.Context) (*stream.Broadcaster[stream.BookEvent], error)
}

// startPublisher mirrors the exchange's top-of-book firehose into Redis
// hashes when the publisher is enabled. The returned stop function detaches
// the subscription and closes the Redis pool.
func startPublisher(ctx context.Context, cfg *config.Config, ex exchange.Exchange, logger *zap.Logger) (func(), error) {
	noop := func() {}
	if !cfg.Redis.Enabled {
		return noop, nil
	}

	feeder, ok := ex.(bookFeeder)
	if !ok {
		logger.Warn("exchange exposes no book feed, redis publisher disabled",
			zap.String("exchange", string(ex.Name())))
		return noop, nil
	}

	feed, err := feeder.BookFeed(ctx)
	if err != nil {
		return noop, fmt.Errorf("book feed: %w", err)
	}

	client := publish.NewGoRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return noop, fmt.Errorf("redis ping: %w", err)
	}

	sub := feed.SubscribeAll()
	writer := publish.NewRedisWriter(client, sub.C, logger)
	go writer.Run(ctx)

	logger.Info("redis top-of-book publisher started", zap.String("addr", cfg.Redis.Addr))
	return func() {
		sub.Close()
		client.Close()
	}, nil
}
