package routing

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-bridge/models"
)

func TestStore_Swap(t *testing.T) {
	original := DefaultTable("claude")
	store := NewStore(original, zap.NewNop())
	assert.Same(t, original, store.Current())

	invalid := DefaultTable("claude")
	invalid.LongContextThreshold = -1
	require.Error(t, store.Swap(invalid))
	assert.Same(t, original, store.Current())

	next := DefaultTable("claude")
	next.LongContextThreshold = 10
	require.NoError(t, store.Swap(next))
	assert.Same(t, next, store.Current())

	assert.Error(t, store.Swap(nil))
}

func TestStore_ConcurrentReadsDuringSwap(t *testing.T) {
	store := NewStore(DefaultTable("claude"), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				table := store.Current()
				_, ok := table.Entries[models.ScenarioSimple]
				assert.True(t, ok)
			}
		}()
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, store.Swap(DefaultTable("claude")))
	}
	wg.Wait()
}

func TestStore_WatchReloadsOnChange(t *testing.T) {
	path := writeFile(t, sampleRoutingFile)
	store := NewStore(DefaultTable("claude"), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reload := func() (*Table, error) {
		return Load(LoadOptions{Path: path}, zap.NewNop())
	}
	require.NoError(t, store.Watch(ctx, path, reload))

	require.NoError(t, os.WriteFile(path, []byte(sampleRoutingFile), 0o600))

	assert.Eventually(t, func() bool {
		_, ok := store.Current().Lookup("gpt-4o")
		return ok
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStore_WatchKeepsTableOnInvalidReload(t *testing.T) {
	path := writeFile(t, sampleRoutingFile)
	original := DefaultTable("claude")
	store := NewStore(original, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	reload := func() (*Table, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return Load(LoadOptions{Path: path}, zap.NewNop())
	}
	require.NoError(t, store.Watch(ctx, path, reload))

	require.NoError(t, os.WriteFile(path, []byte("providers: [broken"), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, 5*time.Second, 50*time.Millisecond)
	assert.Same(t, original, store.Current())
}
