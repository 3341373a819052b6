// Package report renders run outcomes as JSON and optionally ships them to Redis.
package report

import (
	"context"
	"io"

	"github.com/go-redis/redis"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal renders v as compact JSON.
func Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// Render writes v to w as one line of JSON.
func Render(w io.Writer, v interface{}) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return errors.WithStack(err)
}

// RedisSink appends outcomes to a Redis list, one JSON document per run.
type RedisSink struct {
	client *redis.Client
	key    string
}

func NewRedisSink(addr string, key string) *RedisSink {
	return &RedisSink{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

func (s *RedisSink) Push(ctx context.Context, v interface{}) error {
	payload, err := Marshal(v)
	if err != nil {
		return err
	}
	if err := s.client.WithContext(ctx).RPush(s.key, payload).Err(); err != nil {
		return errors.Wrapf(err, "error pushing results to redis list %s", s.key)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
