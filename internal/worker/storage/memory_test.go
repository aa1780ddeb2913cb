package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_TryClaimIsExclusive(t *testing.T) {
	store := NewMemory()
	job := store.Create("a dragon who is afraid of heights", "comedy")
	ctx := context.Background()

	const claimants = 16
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	wg.Add(claimants)
	for i := 0; i < claimants; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			ok, err := store.TryClaim(ctx, job.ID, domain.StatusScriptPending, domain.StatusScriptProcessing, "worker", time.Now().Add(time.Minute))
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())

	stored, err := store.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScriptProcessing, stored.Status)
	require.NotNil(t, stored.LeaseOwner)
}

func TestMemory_TryClaimRejectsInvalidTransition(t *testing.T) {
	store := NewMemory()
	job := store.Create("topic", "style")

	ok, err := store.TryClaim(context.Background(), job.ID, domain.StatusScriptPending, domain.StatusCompiling, "w", time.Now())
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestMemory_ResolveRequiresLease(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	job := store.Create("topic", "style")

	ok, err := store.TryClaim(ctx, job.ID, domain.StatusScriptPending, domain.StatusScriptProcessing, "owner-a", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	res := domain.Succeeded(domain.StatusAssetsPending, domain.Scenes{{Narration: "n", ImagePrompt: "p"}})

	err = store.Resolve(ctx, job.ID, "owner-b", domain.StatusScriptProcessing, res)
	assert.ErrorIs(t, err, domain.ErrLeaseLost)

	require.NoError(t, store.Resolve(ctx, job.ID, "owner-a", domain.StatusScriptProcessing, res))

	stored, err := store.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssetsPending, stored.Status)
	assert.Nil(t, stored.LeaseOwner)
	assert.NotNil(t, stored.ScriptCompletedAt)
	assert.Len(t, stored.Scenes, 1)

	err = store.Resolve(ctx, job.ID, "owner-a", domain.StatusScriptProcessing, res)
	assert.ErrorIs(t, err, domain.ErrLeaseLost)
}

func TestMemory_ReclaimExpired(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	expired := store.Create("expired", "s")
	live := store.Create("live", "s")

	ok, err := store.TryClaim(ctx, expired.ID, domain.StatusScriptPending, domain.StatusScriptProcessing, "crashed", now.Add(-time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.TryClaim(ctx, live.ID, domain.StatusScriptPending, domain.StatusScriptProcessing, "alive", now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	n, err := store.ReclaimExpired(ctx, domain.StageScript, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetJobByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScriptPending, got.Status)
	assert.Nil(t, got.LeaseOwner)

	got, err = store.GetJobByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScriptProcessing, got.Status)

	err = store.ExtendLease(ctx, expired.ID, "crashed", now.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrLeaseLost)
	assert.NoError(t, store.ExtendLease(ctx, live.ID, "alive", now.Add(2*time.Minute)))
}

func TestMemory_NextPendingOldestFirst(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	base := time.Now()

	store.Put(&domain.Job{ID: "new", Status: domain.StatusAssetsPending, CreatedAt: base.Add(time.Minute)})
	store.Put(&domain.Job{ID: "old", Status: domain.StatusAssetsPending, CreatedAt: base})
	store.Put(&domain.Job{ID: "other", Status: domain.StatusScriptPending, CreatedAt: base.Add(-time.Hour)})

	next, err := store.NextPending(ctx, domain.StatusAssetsPending)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "old", next.ID)

	none, err := store.NextPending(ctx, domain.StatusCompilePending)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = store.GetJobByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
