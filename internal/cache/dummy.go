package cache

import "time"

// Dummy is a no-op cache backend used in tests and in configurations
// that want the cache abstraction without its cost.
type Dummy struct{}

func NewDummy() *Dummy { return &Dummy{} }

func (d *Dummy) Set(key string, value []byte, ttl time.Duration) error { return nil }

func (d *Dummy) Get(key string) ([]byte, bool, error) { return nil, false, nil }

func (d *Dummy) Remove(key string) error { return nil }

func (d *Dummy) Ping() error { return nil }

func (d *Dummy) Flush() error { return nil }
