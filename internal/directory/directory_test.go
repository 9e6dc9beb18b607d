package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/models"
)

type countingDirectory struct {
	calls     int
	providers []models.Provider
	err       error
}

func (d *countingDirectory) ListProviders(ctx context.Context, departmentID, stage string) ([]models.Provider, error) {
	d.calls++
	return d.providers, d.err
}

func TestCachedListProviders(t *testing.T) {
	inner := &countingDirectory{providers: []models.Provider{{ProviderID: "prov-1", Room: "A1"}}}
	cached := NewCached(inner, time.Minute)

	for i := 0; i < 3; i++ {
		providers, err := cached.ListProviders(context.Background(), "dept-eye", models.StageOptometrist)
		require.NoError(t, err)
		require.Len(t, providers, 1)
	}
	require.Equal(t, 1, inner.calls)

	// Different partition misses the cache.
	_, err := cached.ListProviders(context.Background(), "dept-eye", models.StageDoctor)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	inner := &countingDirectory{err: errors.New("directory down")}
	cached := NewCached(inner, time.Minute)

	_, err := cached.ListProviders(context.Background(), "dept-eye", models.StageOptometrist)
	require.Error(t, err)
	_, err = cached.ListProviders(context.Background(), "dept-eye", models.StageOptometrist)
	require.Error(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestRooms(t *testing.T) {
	providers := []models.Provider{
		{ProviderID: "prov-1", Room: "B2"},
		{ProviderID: "prov-2", Room: ""},
		{ProviderID: "prov-3", Room: "A1"},
	}
	require.Equal(t, []string{"B2", "A1"}, Rooms(providers))
}
