package redis

import (
	// Go Internal Packages
	"context"
	"strings"
	"time"

	// External Packages
	"github.com/redis/go-redis/v9"
)

// Connect opens a client for uri and pings it. uri is either host:port or a
// redis:// URL; a non-empty password overrides the one in the URL.
func Connect(ctx context.Context, uri, password string) (*redis.Client, error) {
	opts, err := clientOptions(uri, password)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func clientOptions(uri, password string) (*redis.Options, error) {
	if strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://") {
		opts, err := redis.ParseURL(uri)
		if err != nil {
			return nil, err
		}
		if password != "" {
			opts.Password = password
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:        uri,
		Password:    password,
		DialTimeout: 5 * time.Second,
		ReadTimeout: 3 * time.Second,
	}, nil
}
