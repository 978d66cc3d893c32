package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func await[T any](t *testing.T, ch <-chan Result[T]) Result[T] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for queue result")
		return Result[T]{}
	}
}

func TestAddAppliesReducersInOrder(t *testing.T) {
	q := New(0)

	r1 := q.Add(func(s int) (int, error) { return s + 1, nil }, PriorityNormal)
	r2 := q.Add(func(s int) (int, error) { return s * 10, nil }, PriorityNormal)

	res1 := await(t, r1)
	require.NoError(t, res1.Err)
	assert.Equal(t, 1, res1.Value)

	res2 := await(t, r2)
	require.NoError(t, res2.Err)
	assert.Equal(t, 10, res2.Value)

	assert.Equal(t, 10, q.State())
}

func TestFailedReducerLeavesStateIntact(t *testing.T) {
	q := New(5)
	boom := errors.New("boom")

	res := await(t, q.Add(func(s int) (int, error) { return 0, boom }, PriorityNormal))
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 5, q.State())

	// Subsequent work proceeds against the unchanged state.
	res2 := await(t, q.Add(func(s int) (int, error) { return s + 1, nil }, PriorityNormal))
	require.NoError(t, res2.Err)
	assert.Equal(t, 6, res2.Value)
}

func TestHigherPriorityJumpsPendingQueue(t *testing.T) {
	q := New("")

	block := make(chan struct{})
	// Occupy the worker so the next two adds queue up behind it.
	running := q.Add(func(s string) (string, error) {
		<-block
		return s, nil
	}, PriorityNormal)

	var order []string
	var orderCh = make(chan string, 2)
	q.Add(func(s string) (string, error) {
		orderCh <- "normal"
		return s + "n", nil
	}, PriorityNormal)
	q.Add(func(s string) (string, error) {
		orderCh <- "urgent"
		return s + "u", nil
	}, PriorityUrgent)

	close(block)
	await(t, running)

	order = append(order, <-orderCh, <-orderCh)
	assert.Equal(t, []string{"urgent", "normal"}, order)
}

func TestClearDrainsThenRejectsNewWork(t *testing.T) {
	q := New(1)

	block := make(chan struct{})
	running := q.Add(func(s int) (int, error) {
		<-block
		return s + 1, nil
	}, PriorityNormal)
	queued := q.Add(func(s int) (int, error) { return s + 10, nil }, PriorityNormal)

	clearCh := q.Clear()

	close(block)
	await(t, running)
	await(t, queued)

	final := await(t, clearCh)
	require.NoError(t, final.Err)
	assert.Equal(t, 12, final.Value)

	rejected := await(t, q.Add(func(s int) (int, error) { return s, nil }, PriorityNormal))
	assert.ErrorIs(t, rejected.Err, ErrClosed)
}

func TestSubscribeReceivesDataEvents(t *testing.T) {
	q := New(0)

	seen := make(chan int, 4)
	q.Subscribe(func(v int) { seen <- v })

	await(t, q.Add(func(s int) (int, error) { return s + 1, nil }, PriorityNormal))
	await(t, q.Add(func(s int) (int, error) { return s + 1, nil }, PriorityNormal))

	assert.Equal(t, 1, <-seen)
	assert.Equal(t, 2, <-seen)
}
