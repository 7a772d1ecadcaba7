package irq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLine_RaiseWait(t *testing.T) {
	l, err := NewLine()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, l.Close())
	})

	// Raises before the wait collapse into one wakeup.
	require.NoError(t, l.Raise())
	require.NoError(t, l.Raise())
	require.NoError(t, l.Wait())

	woke := make(chan error, 1)
	go func() {
		woke <- l.Wait()
	}()
	select {
	case <-woke:
		t.Fatal("wait returned without a raise")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, l.Raise())
	select {
	case err := <-woke:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after raise")
	}
}

func TestLine_CloseWakesWaiter(t *testing.T) {
	l, err := NewLine()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- l.Wait()
	}()
	select {
	case <-done:
		t.Fatal("wait returned early")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, l.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not wake up")
	}

	assert.ErrorIs(t, l.Raise(), ErrClosed)
	assert.NoError(t, l.Close())
}

// Closing while a waiter is blocked must wake it every time, not just when
// the wakeup happens to be collected before the descriptors go away.
func TestLine_CloseWakesWaiterRepeatedly(t *testing.T) {
	for i := range 100 {
		l, err := NewLine()
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			done <- l.Wait()
		}()
		if i%2 == 0 {
			// Give the waiter time to enter epoll.
			time.Sleep(time.Millisecond)
		}

		require.NoError(t, l.Close())
		select {
		case err := <-done:
			require.ErrorIs(t, err, ErrClosed, "round %d", i)
		case <-time.After(5 * time.Second):
			t.Fatalf("round %d: waiter did not wake up", i)
		}
	}
}

// A wait on a closed line returns immediately and never touches descriptors
// that may already belong to a newer line.
func TestLine_WaitAfterClose(t *testing.T) {
	old, err := NewLine()
	require.NoError(t, err)
	require.NoError(t, old.Close())

	// Likely reuses the descriptor numbers the old line just released.
	l, err := NewLine()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, l.Close())
	})

	done := make(chan error, 1)
	go func() {
		done <- old.Wait()
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("wait on a closed line blocked")
	}

	// The new line is unaffected.
	require.NoError(t, l.Raise())
	require.NoError(t, l.Wait())
}
