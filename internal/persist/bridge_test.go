package persist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betslip/internal/cache/memory"
	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/slip"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAttached(t *testing.T, kv domain.KVStore) (*Bridge, *slip.Store) {
	t.Helper()
	b := NewBridge(kv, Keys{}, discardLogger())
	s := slip.NewStore()
	t.Cleanup(b.Attach(s))
	return b, s
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	b, s := newAttached(t, kv)

	s.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.85})
	s.Add(domain.Selection{FixtureID: 2, Market: "Goals Over/Under", Selection: "Over", Odd: 2.1, Handicap: domain.HandicapPtr("2.5")})
	s.SetShareCode("AB12CD")
	original := s.Selections()

	restored, code := b.Restore(ctx)
	assert.Equal(t, "AB12CD", code)
	require.Len(t, restored, 2)

	fresh := slip.NewStore()
	fresh.Load(restored, code)
	got := fresh.Selections()
	for i := range original {
		assert.True(t, original[i].Key().Equal(got[i].Key()))
		assert.Equal(t, original[i].Odd, got[i].Odd)
	}
	assert.Equal(t, "AB12CD", fresh.ShareCode())
}

func TestEmptySlipRemovesKey(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	_, s := newAttached(t, kv)

	s.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.85})
	_, err := kv.Get(ctx, DefaultSelectionsKey)
	require.NoError(t, err)

	s.Remove(1, "Match Winner", "Home")
	_, err = kv.Get(ctx, DefaultSelectionsKey)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClearPurgesStorage(t *testing.T) {
	kv := memory.NewKVStore()
	_, s := newAttached(t, kv)

	s.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.85})
	s.SetShareCode("CODE9")
	assert.Equal(t, 2, kv.Len())

	s.Clear()
	assert.Equal(t, 0, kv.Len())
}

func TestStakeIsNotPersisted(t *testing.T) {
	kv := memory.NewKVStore()
	_, s := newAttached(t, kv)

	require.NoError(t, s.SetStake(5))
	assert.Equal(t, 0, kv.Len())
}

func TestRestoreFailsClosed(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	require.NoError(t, kv.Set(ctx, DefaultSelectionsKey, "{not json"))
	require.NoError(t, kv.Set(ctx, DefaultShareCodeKey, "bad code!"))

	b := NewBridge(kv, Keys{}, discardLogger())
	selections, code := b.Restore(ctx)
	assert.Empty(t, selections)
	assert.Equal(t, "", code)
	assert.Equal(t, 0, kv.Len(), "corrupt entries are deleted")
}

func TestRestoreDropsImpossibleEntries(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	data, err := json.Marshal([]domain.Selection{
		{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.5},
		{FixtureID: 0, Market: "Match Winner", Selection: "Home", Odd: 1.5},
		{FixtureID: 2, Market: "", Selection: "Home", Odd: 1.5},
		{FixtureID: 3, Market: "Match Winner", Selection: "Away", Odd: 0.9},
	})
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, DefaultSelectionsKey, string(data)))

	selections, _ := NewBridge(kv, Keys{}, discardLogger()).Restore(ctx)
	require.Len(t, selections, 1)
	assert.Equal(t, int64(1), selections[0].FixtureID)
}

func TestRestoreMissing(t *testing.T) {
	selections, code := NewBridge(memory.NewKVStore(), Keys{}, discardLogger()).Restore(context.Background())
	assert.Nil(t, selections)
	assert.Equal(t, "", code)
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, error) { return "", errors.New("down") }
func (failingKV) Set(context.Context, string, string) error   { return errors.New("down") }
func (failingKV) Delete(context.Context, string) error        { return errors.New("down") }

func TestStorageFailuresAreSwallowed(t *testing.T) {
	b, s := newAttached(t, failingKV{})

	assert.NotPanics(t, func() {
		s.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.85})
	})
	assert.Equal(t, 1, s.Len())

	selections, code := b.Restore(context.Background())
	assert.Nil(t, selections)
	assert.Equal(t, "", code)
}

func TestCustomKeys(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	b := NewBridge(kv, Keys{Selections: "sel", ShareCode: "code"}, discardLogger())
	s := slip.NewStore()
	defer b.Attach(s)()

	s.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.85})
	_, err := kv.Get(ctx, "sel")
	assert.NoError(t, err)
}
