package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/remote"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func productIDs(t *testing.T, w *WishlistCache) []int64 {
	t.Helper()
	var ids []int64
	for _, item := range w.Snapshot().Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func TestGetWishlist_NewestFirst(t *testing.T) {
	backend := newMockBackend()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	backend.wishlist[1] = base
	backend.wishlist[2] = base.Add(time.Hour)
	backend.wishlist[3] = base.Add(30 * time.Minute)
	sut := NewWishlistCache(backend)

	_, err := sut.GetWishlist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 1}, productIDs(t, sut))
	assert.Equal(t, 3, sut.ItemCount())
}

func TestAddToWishlist_SetSemantics(t *testing.T) {
	backend := newMockBackend()
	sut := NewWishlistCache(backend)
	ctx := context.Background()

	require.NoError(t, sut.AddToWishlist(ctx, 5))
	require.NoError(t, sut.AddToWishlist(ctx, 5))

	assert.Equal(t, []int64{5}, productIDs(t, sut))
	assert.Equal(t, 1, sut.ItemCount())
}

func TestAddToWishlist_InvalidProductNeverReachesBackend(t *testing.T) {
	backend := newMockBackend()
	sut := NewWishlistCache(backend)

	err := sut.AddToWishlist(context.Background(), 0)
	assert.ErrorIs(t, err, remote.ErrInvalidProductID)

	_, err = sut.IsMember(context.Background(), -1)
	assert.ErrorIs(t, err, remote.ErrInvalidProductID)

	_, checks := backend.calls()
	assert.Zero(t, checks)
	assert.False(t, sut.Loaded())
}

func TestAddToWishlist_FailureLeavesSnapshot(t *testing.T) {
	backend := newMockBackend()
	backend.wishlist[1] = time.Now()
	sut := NewWishlistCache(backend)
	ctx := context.Background()
	_, err := sut.GetWishlist(ctx)
	require.NoError(t, err)

	backend.setErr(&backend.addWishErr, &remote.ServerError{Op: "add to wishlist", Status: 500})

	err = sut.AddToWishlist(ctx, 2)
	var srvErr *remote.ServerError
	require.ErrorAs(t, err, &srvErr)
	var refreshErr *RefreshError
	assert.NotErrorAs(t, err, &refreshErr)
	assert.Equal(t, []int64{1}, productIDs(t, sut))
}

func TestAddToWishlist_RefreshFailure(t *testing.T) {
	backend := newMockBackend()
	sut := NewWishlistCache(backend)
	backend.setErr(&backend.getWishlistErr, networkErr("get wishlist"))

	err := sut.AddToWishlist(context.Background(), 2)
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.True(t, remote.IsTransient(err))
	assert.False(t, sut.Loaded())
}

func TestRemoveFromWishlist_Idempotent(t *testing.T) {
	backend := newMockBackend()
	backend.wishlist[1] = time.Now()
	sut := NewWishlistCache(backend)
	ctx := context.Background()

	require.NoError(t, sut.RemoveFromWishlist(ctx, 1))
	require.NoError(t, sut.RemoveFromWishlist(ctx, 1))
	require.NoError(t, sut.RemoveFromWishlist(ctx, 77))
	assert.Empty(t, sut.Snapshot().Items)
	assert.True(t, sut.Loaded())
}

func TestGetWishlist_UnauthorizedResets(t *testing.T) {
	backend := newMockBackend()
	backend.wishlist[1] = time.Now()
	sut := NewWishlistCache(backend)
	ctx := context.Background()
	_, err := sut.GetWishlist(ctx)
	require.NoError(t, err)

	backend.setErr(&backend.getWishlistErr, &remote.ValidationError{Op: "get wishlist", Status: 403})
	_, err = sut.GetWishlist(ctx)
	require.Error(t, err)
	assert.False(t, sut.Loaded())
	assert.Zero(t, sut.ItemCount())
}

func TestGetWishlist_NetworkErrorKeepsSnapshot(t *testing.T) {
	backend := newMockBackend()
	backend.wishlist[1] = time.Now()
	sut := NewWishlistCache(backend)
	ctx := context.Background()
	_, err := sut.GetWishlist(ctx)
	require.NoError(t, err)

	backend.setErr(&backend.getWishlistErr, networkErr("get wishlist"))
	_, err = sut.GetWishlist(ctx)
	require.Error(t, err)
	assert.Equal(t, []int64{1}, productIDs(t, sut))
}

func TestIsMember_AnswersFromLoadedSnapshot(t *testing.T) {
	backend := newMockBackend()
	backend.wishlist[1] = time.Now()
	sut := NewWishlistCache(backend)
	ctx := context.Background()
	_, err := sut.GetWishlist(ctx)
	require.NoError(t, err)

	in, err := sut.IsMember(ctx, 1)
	require.NoError(t, err)
	assert.True(t, in)

	in, err = sut.IsMember(ctx, 2)
	require.NoError(t, err)
	assert.False(t, in)

	_, checks := backend.calls()
	assert.Zero(t, checks)
}

func TestIsMember_FallsBackBeforeLoad(t *testing.T) {
	backend := newMockBackend()
	backend.wishlist[3] = time.Now()
	sut := NewWishlistCache(backend)
	ctx := context.Background()

	in, err := sut.IsMember(ctx, 3)
	require.NoError(t, err)
	assert.True(t, in)

	_, checks := backend.calls()
	assert.Equal(t, 1, checks)
	assert.False(t, sut.Loaded(), "a membership check does not populate the snapshot")
}

func TestIsMember_FallbackErrorPropagates(t *testing.T) {
	backend := newMockBackend()
	backend.setErr(&backend.checkErr, networkErr("check wishlist"))
	sut := NewWishlistCache(backend)

	in, err := sut.IsMember(context.Background(), 3)
	assert.False(t, in)
	assert.True(t, remote.IsTransient(err))
}

func TestIsMember_ConcurrentChecksShareOneRequest(t *testing.T) {
	backend := newMockBackend()
	backend.wishlist[4] = time.Now()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	backend.checkHook = func() {
		once.Do(func() { close(entered) })
		<-release
	}
	sut := NewWishlistCache(backend)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in, err := sut.IsMember(ctx, 4)
			assert.NoError(t, err)
			results[i] = in
		}(i)
	}

	<-entered
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	_, checks := backend.calls()
	assert.Equal(t, 1, checks)
	for _, in := range results {
		assert.True(t, in)
	}
}

func TestIsMember_ChecksAreNotSharedAcrossIdentities(t *testing.T) {
	backend := newMockBackend()
	backend.wishlist[4] = time.Now()
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	backend.checkHook = func() {
		entered <- struct{}{}
		<-release
	}
	var scope atomic.Value
	scope.Store("sess-1:u1")
	sut := NewWishlistCache(backend, WithScope(func() string { return scope.Load().(string) }))
	ctx := context.Background()

	first := make(chan bool, 1)
	go func() {
		in, err := sut.IsMember(ctx, 4)
		assert.NoError(t, err)
		first <- in
	}()
	<-entered

	// Logged out: the next identity's wishlist does not hold product 4.
	scope.Store("sess-2:")
	backend.m.Lock()
	delete(backend.wishlist, 4)
	backend.m.Unlock()

	second := make(chan bool, 1)
	go func() {
		in, err := sut.IsMember(ctx, 4)
		assert.NoError(t, err)
		second <- in
	}()
	<-entered
	close(release)

	assert.True(t, <-first)
	assert.False(t, <-second)
	_, checks := backend.calls()
	assert.Equal(t, 2, checks)
}

func TestIsMember_ResetStartsNewCheck(t *testing.T) {
	backend := newMockBackend()
	backend.wishlist[4] = time.Now()
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	backend.checkHook = func() {
		entered <- struct{}{}
		<-release
	}
	sut := NewWishlistCache(backend)
	ctx := context.Background()

	first := make(chan bool, 1)
	go func() {
		in, _ := sut.IsMember(ctx, 4)
		first <- in
	}()
	<-entered

	sut.Reset()
	backend.m.Lock()
	delete(backend.wishlist, 4)
	backend.m.Unlock()

	second := make(chan bool, 1)
	go func() {
		in, _ := sut.IsMember(ctx, 4)
		second <- in
	}()
	<-entered
	close(release)

	assert.True(t, <-first)
	assert.False(t, <-second)
}

func TestIsMember_CancelledCallerDoesNotFailOthers(t *testing.T) {
	backend := newMockBackend()
	backend.wishlist[4] = time.Now()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	backend.checkHook = func() {
		once.Do(func() { close(entered) })
		<-release
	}
	sut := NewWishlistCache(backend)

	cctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := sut.IsMember(cctx, 4)
		firstErr <- err
	}()
	<-entered

	second := make(chan bool, 1)
	go func() {
		in, err := sut.IsMember(context.Background(), 4)
		assert.NoError(t, err)
		second <- in
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.True(t, <-second)
	_, checks := backend.calls()
	assert.Equal(t, 1, checks)
}

func TestIsMember_StaleSnapshotAsksBackend(t *testing.T) {
	backend := newMockBackend()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	sut := NewWishlistCache(backend, WithClock(clock.Now), WithMaxAge(time.Minute))
	ctx := context.Background()

	_, err := sut.GetWishlist(ctx)
	require.NoError(t, err)

	// Added elsewhere after our snapshot was taken.
	backend.m.Lock()
	backend.wishlist[9] = clock.Now()
	backend.m.Unlock()

	in, err := sut.IsMember(ctx, 9)
	require.NoError(t, err)
	assert.False(t, in, "fresh snapshot is authoritative")

	clock.Advance(2 * time.Minute)
	in, err = sut.IsMember(ctx, 9)
	require.NoError(t, err)
	assert.True(t, in)

	_, checks := backend.calls()
	assert.Equal(t, 1, checks)
}

func TestWishlistReset(t *testing.T) {
	backend := newMockBackend()
	backend.wishlist[1] = time.Now()
	sut := NewWishlistCache(backend)
	_, err := sut.GetWishlist(context.Background())
	require.NoError(t, err)

	var got []int
	sut.Subscribe(func(w *domain.Wishlist) { got = append(got, len(w.Items)) })
	sut.Reset()

	assert.False(t, sut.Loaded())
	assert.Equal(t, []int{0}, got)
}
