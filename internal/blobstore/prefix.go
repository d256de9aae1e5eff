package blobstore

import (
	"context"
	"path"
	"strings"
)

// Prefixed scopes a Store to a sub-namespace.
type Prefixed struct {
	inner  Store
	prefix string
}

// WithPrefix returns a Store whose names are relative to prefix inside inner.
func WithPrefix(inner Store, prefix string) *Prefixed {
	return &Prefixed{inner: inner, prefix: strings.Trim(prefix, "/")}
}

func (p *Prefixed) key(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

// Get reads a blob.
func (p *Prefixed) Get(ctx context.Context, name string) ([]byte, error) {
	return p.inner.Get(ctx, p.key(name))
}

// Put writes a blob.
func (p *Prefixed) Put(ctx context.Context, name string, data []byte) error {
	return p.inner.Put(ctx, p.key(name), data)
}

// Exists reports whether a blob is present.
func (p *Prefixed) Exists(ctx context.Context, name string) (bool, error) {
	return p.inner.Exists(ctx, p.key(name))
}

// Delete removes a blob.
func (p *Prefixed) Delete(ctx context.Context, name string) error {
	return p.inner.Delete(ctx, p.key(name))
}

// List returns names relative to the prefix.
func (p *Prefixed) List(ctx context.Context, prefix string) ([]string, error) {
	if p.prefix == "" {
		return p.inner.List(ctx, prefix)
	}
	full := p.prefix + "/" + prefix
	names, err := p.inner.List(ctx, full)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, strings.TrimPrefix(n, p.prefix+"/"))
	}
	return out, nil
}
