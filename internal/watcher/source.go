package watcher

import "context"

// Source is one external store of the route configuration blob. Fetch
// pulls the current blob; Watch streams every subsequent version until
// ctx is cancelled or the source is closed.
type Source interface {
	Fetch(ctx context.Context) (string, error)
	Watch(ctx context.Context) (<-chan string, error)
	Close() error
}
