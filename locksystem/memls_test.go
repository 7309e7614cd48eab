package locksystem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dav "github.com/nmathewson/davengine"
)

func TestLockExclusiveConflict(t *testing.T) {
	ls := New()
	_, err := ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	require.NoError(t, err)

	_, err = ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	require.Error(t, err)
	assert.Equal(t, dav.ErrorLocked, err)
}

func TestLockSharedCompatible(t *testing.T) {
	ls := New()
	_, err := ls.Lock("/a/b", dav.LockOptions{Shared: true, Timeout: time.Minute})
	require.NoError(t, err)

	_, err = ls.Lock("/a/b", dav.LockOptions{Shared: true, Timeout: time.Minute})
	assert.NoError(t, err)
}

func TestLockDeepCoversDescendant(t *testing.T) {
	ls := New()
	_, err := ls.Lock("/a", dav.LockOptions{Deep: true, Timeout: time.Minute})
	require.NoError(t, err)

	_, err = ls.Lock("/a/b/c", dav.LockOptions{Timeout: time.Minute})
	assert.Error(t, err)
}

func TestLockShallowDoesNotCoverDescendant(t *testing.T) {
	ls := New()
	_, err := ls.Lock("/a", dav.LockOptions{Timeout: time.Minute})
	require.NoError(t, err)

	_, err = ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	assert.NoError(t, err)
}

func TestLockNewDeepConflictsWithAncestor(t *testing.T) {
	ls := New()
	_, err := ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	require.NoError(t, err)

	_, err = ls.Lock("/a", dav.LockOptions{Deep: true, Timeout: time.Minute})
	assert.Error(t, err)
}

func TestUnlockThenRelock(t *testing.T) {
	ls := New()
	l, err := ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	require.NoError(t, err)

	require.NoError(t, ls.Unlock("/a/b", l.Token))

	_, err = ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	assert.NoError(t, err)
}

func TestUnlockWrongPathFails(t *testing.T) {
	ls := New()
	l, err := ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	require.NoError(t, err)

	err = ls.Unlock("/a/c", l.Token)
	assert.Error(t, err)
}

func TestRefreshExtendsExpiry(t *testing.T) {
	ls := New()
	l, err := ls.Lock("/a/b", dav.LockOptions{Timeout: time.Second})
	require.NoError(t, err)

	refreshed, err := ls.Refresh(l.Token, time.Hour, false)
	require.NoError(t, err)
	assert.True(t, refreshed.Expiry.After(l.Expiry))
}

func TestRefreshClampsToMax(t *testing.T) {
	ls := New()
	l, err := ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	require.NoError(t, err)

	refreshed, err := ls.Refresh(l.Token, 24*time.Hour, false)
	require.NoError(t, err)
	assert.WithinDuration(t, l.Created.Add(MaxExclusiveDuration), refreshed.Expiry, time.Second)
}

func TestRefreshInfiniteIsHonoredUnclamped(t *testing.T) {
	ls := New()
	l, err := ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	require.NoError(t, err)

	refreshed, err := ls.Refresh(l.Token, 0, true)
	require.NoError(t, err)
	assert.True(t, refreshed.Expiry.IsZero())
}

func TestExpiredLockIsReaped(t *testing.T) {
	ls := New()
	_, err := ls.Lock("/a/b", dav.LockOptions{Timeout: time.Nanosecond})
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, err = ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	assert.NoError(t, err)
}

func TestCheckRequiresToken(t *testing.T) {
	ls := New()
	l, err := ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	require.NoError(t, err)

	assert.Error(t, ls.Check("/a/b", nil, false, "", true))
	assert.NoError(t, ls.Check("/a/b", []string{l.Token}, false, "", true))
}

func TestDiscoverIncludesDeepAncestor(t *testing.T) {
	ls := New()
	_, err := ls.Lock("/a", dav.LockOptions{Deep: true, Timeout: time.Minute})
	require.NoError(t, err)

	locks := ls.Discover("/a/b/c", false)
	require.Len(t, locks, 1)
	assert.Equal(t, "/a", locks[0].Path)
}

func TestDiscoverDescendants(t *testing.T) {
	ls := New()
	_, err := ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	require.NoError(t, err)

	assert.Empty(t, ls.Discover("/a", false))
	assert.Len(t, ls.Discover("/a", true), 1)
}

func TestDeleteRemovesSubtree(t *testing.T) {
	ls := New()
	_, err := ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	require.NoError(t, err)

	ls.Delete("/a")

	_, err = ls.Lock("/a/b", dav.LockOptions{Timeout: time.Minute})
	assert.NoError(t, err)
}
