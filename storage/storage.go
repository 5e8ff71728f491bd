// Package storage provides the durable key/value storage the session store writes through
// to, plus a change feed that lets other client instances observe writes.
package storage

import (
	"context"
)

// Storage is a flat string key/value store. Get returns errors.ErrNotFound for absent keys.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Event describes a write made by another instance sharing the same storage.
// Value is empty when the key was deleted.
type Event struct {
	Source string `json:"source"`
	Key    string `json:"key"`
	Value  string `json:"value,omitempty"`
}

// Watcher is implemented by storages that can notify other instances of writes.
// Instances never receive their own events.
type Watcher interface {
	Watch(ctx context.Context, fn func(Event)) (stop func(), err error)
}
