package chunkserv

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientList(t *testing.T) {
	cl := NewClientList()
	now := time.Now()
	first := &Client{ID: uuid.New(), Addr: "a", ConnectedAt: now}
	second := &Client{ID: uuid.New(), Addr: "b", ConnectedAt: now.Add(time.Second)}
	cl.Add(second)
	cl.Add(first)

	got, ok := cl.Get(first.ID)
	require.True(t, ok)
	assert.Same(t, first, got)

	second.activeRequests.Add(2)
	infos := cl.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Addr)
	assert.Equal(t, "b", infos[1].Addr)
	assert.Equal(t, 2, infos[1].ActiveRequests)

	cl.Remove(first.ID)
	_, ok = cl.Get(first.ID)
	assert.False(t, ok)
	assert.Len(t, cl.List(), 1)
}
