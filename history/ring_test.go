package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conditional-orders-go/order"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func terminal(id, owner string, status order.Status) order.Order {
	return order.Order{ID: id, OwnerID: owner, Status: status}
}

func TestLogFIFOEviction(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 5; i++ {
		l.Append(terminal(fmt.Sprintf("o%d", i), "alice", order.StatusCancelled), t0.Add(time.Duration(i)*time.Second))
	}
	require.Equal(t, 3, l.Len("alice"))

	got := l.Recent("alice", 0)
	require.Len(t, got, 3)
	assert.Equal(t, "o4", got[0].Order.ID)
	assert.Equal(t, "o3", got[1].Order.ID)
	assert.Equal(t, "o2", got[2].Order.ID)

	top := l.Recent("alice", 1)
	require.Len(t, top, 1)
	assert.Equal(t, "o4", top[0].Order.ID)
	assert.True(t, top[0].ArchivedAt.Equal(t0.Add(4*time.Second)))
}

func TestLogPerOwnerAndIgnoresPending(t *testing.T) {
	l := NewLog(0)
	assert.Equal(t, DefaultCapacity, l.capacity)

	l.Append(terminal("a", "alice", order.StatusFilled), t0)
	l.Append(terminal("b", "bob", order.StatusFailed), t0)
	l.Append(terminal("c", "alice", order.StatusPending), t0)

	assert.Equal(t, 1, l.Len("alice"))
	assert.Equal(t, 1, l.Len("bob"))
	assert.Empty(t, l.Recent("carol", 10))
	assert.NotNil(t, l.Recent("carol", 10))
}

func TestLogCapacityDefault(t *testing.T) {
	l := NewLog(DefaultCapacity)
	for i := 0; i < DefaultCapacity+10; i++ {
		l.Append(terminal(fmt.Sprintf("o%d", i), "alice", order.StatusFilled), t0)
	}
	assert.Equal(t, DefaultCapacity, l.Len("alice"))
	assert.Equal(t, fmt.Sprintf("o%d", DefaultCapacity+9), l.Recent("alice", 1)[0].Order.ID)
	assert.Equal(t, "o10", l.Recent("alice", 0)[DefaultCapacity-1].Order.ID)
}
