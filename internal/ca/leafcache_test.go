package ca

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(t.TempDir())
	_, err := store.Load()
	require.NoError(t, err)
	return store
}

func TestLeafCacheIsIdempotentPerHost(t *testing.T) {
	cache := NewLeafCache(newTestStore(t), 0)

	_, certA, err := cache.GetOrGenerate("a.test")
	require.NoError(t, err)
	_, certB, err := cache.GetOrGenerate("a.test")
	require.NoError(t, err)

	require.Equal(t, certA.SerialNumber, certB.SerialNumber)
}

func TestLeafCacheConcurrentGenerationIsDeduplicated(t *testing.T) {
	cache := NewLeafCache(newTestStore(t), 0)

	var wg sync.WaitGroup
	serials := make([]string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, cert, err := cache.GetOrGenerate("concurrent.test")
			require.NoError(t, err)
			serials[i] = cert.SerialNumber.String()
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(serials); i++ {
		require.Equal(t, serials[0], serials[i])
	}
}

func TestLeafCacheNeverExceedsCapacity(t *testing.T) {
	cache := NewLeafCache(newTestStore(t), 8)

	for i := 0; i < 40; i++ {
		_, _, err := cache.GetOrGenerate(fmt.Sprintf("host-%d.test", i))
		require.NoError(t, err)
		require.LessOrEqual(t, cache.Len(), 8)
	}
}

func TestLeafCacheEvictedHostGetsFreshCert(t *testing.T) {
	cache := NewLeafCache(newTestStore(t), 4)

	_, first, err := cache.GetOrGenerate("evictee.test")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, _, err := cache.GetOrGenerate(fmt.Sprintf("filler-%d.test", i))
		require.NoError(t, err)
	}

	_, second, err := cache.GetOrGenerate("evictee.test")
	require.NoError(t, err)
	require.NotEqual(t, first.SerialNumber, second.SerialNumber)
	require.Equal(t, first.Subject.CommonName, second.Subject.CommonName)
}
