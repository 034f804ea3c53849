package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/milkpudding/gateway/internal/config"
	"github.com/milkpudding/gateway/internal/logging"
)

// EtcdSource reads the route blob from a single etcd key and pushes a
// new version on every write to that key.
type EtcdSource struct {
	client  *clientv3.Client
	key     string
	timeout time.Duration
}

// NewEtcdSource connects to etcd and verifies the cluster is reachable.
func NewEtcdSource(cfg config.RouteSourceConfig) (*EtcdSource, error) {
	etcdCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.Timeout,
	}
	if cfg.Username != "" {
		etcdCfg.Username = cfg.Username
		etcdCfg.Password = cfg.Password
	}

	client, err := clientv3.New(etcdCfg)
	if err != nil {
		return nil, fmt.Errorf("create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to etcd: %w", err)
	}

	return &EtcdSource{
		client:  client,
		key:     cfg.Key,
		timeout: cfg.Timeout,
	}, nil
}

// Fetch reads the current value of the route key. A missing key is an
// empty blob, which downstream refresh treats as a no-op.
func (s *EtcdSource) Fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", s.key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", nil
	}
	return string(resp.Kvs[0].Value), nil
}

// Watch streams every new value written to the route key. When the watch
// channel breaks it re-subscribes under exponential backoff.
func (s *EtcdSource) Watch(ctx context.Context) (<-chan string, error) {
	out := make(chan string)
	go s.run(ctx, out)
	return out, nil
}

func (s *EtcdSource) run(ctx context.Context, out chan<- string) {
	defer close(out)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry forever

	for {
		if ctx.Err() != nil {
			return
		}

		watchCh := s.client.Watch(clientv3.WithRequireLeader(ctx), s.key)
		broken := s.consume(ctx, watchCh, out, bo)
		if !broken {
			return
		}

		wait := bo.NextBackOff()
		logging.Warn("etcd route watch interrupted, resubscribing",
			zap.String("key", s.key), zap.Duration("backoff", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// consume drains one watch stream. It returns true when the stream broke
// and a resubscribe is needed, false on context cancellation.
func (s *EtcdSource) consume(ctx context.Context, watchCh clientv3.WatchChan, out chan<- string, bo *backoff.ExponentialBackOff) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case resp, ok := <-watchCh:
			if !ok {
				return true
			}
			if err := resp.Err(); err != nil {
				logging.Error("etcd route watch error", zap.String("key", s.key), zap.Error(err))
				return true
			}
			bo.Reset()
			for _, ev := range resp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}
				select {
				case out <- string(ev.Kv.Value):
				case <-ctx.Done():
					return false
				}
			}
		}
	}
}

// Close closes the etcd client.
func (s *EtcdSource) Close() error {
	return s.client.Close()
}
