package data

import (
	"github.com/redis/go-redis/v9"
)

// ConnectRedis parses a redis URL and returns a client. An empty URL returns
// a nil client; callers treat nil as "transcript disabled".
func ConnectRedis(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}
