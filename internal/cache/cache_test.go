package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewWithoutAddrDisablesCaching(t *testing.T) {
	c := New("")
	assert.IsType(t, Noop{}, c)
}

func TestNoopAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}

	c.Set(ctx, "k", []byte("v"), time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	// Del on a no-op cache must not panic either.
	c.Del(ctx, "k")
}
