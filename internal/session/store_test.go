package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client), mr
}

func TestStore_Ping(t *testing.T) {
	store, _ := testStore(t)

	require.NoError(t, store.Ping(context.Background()))
}

// --- Tokens ---

func TestStore_AccessTokenRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, ok, err := store.AccessToken(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutAccessToken(ctx, "42", "a1", time.Hour))

	got, ok, err := store.AccessToken(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a1", got)
}

func TestStore_RefreshTokenRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutRefreshToken(ctx, "42", "r1", time.Hour))

	got, ok, err := store.RefreshToken(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r1", got)
}

func TestStore_PutOverwritesAndResetsTTL(t *testing.T) {
	store, mr := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutAccessToken(ctx, "42", "old", time.Minute))
	require.NoError(t, store.PutAccessToken(ctx, "42", "new", time.Hour))

	got, ok, err := store.AccessToken(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", got)
	assert.Equal(t, time.Hour, mr.TTL("access_token:42"))
}

func TestStore_ExpiryReadsAsAbsence(t *testing.T) {
	store, mr := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutAccessToken(ctx, "42", "a1", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := store.AccessToken(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- Staff flag ---

func TestStore_StaffFlagRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, ok, err := store.StaffFlag(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutStaffFlag(ctx, "42", true, time.Hour))

	isStaff, ok, err := store.StaffFlag(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, isStaff)
}

func TestStore_StaffFlagFalseIsPresent(t *testing.T) {
	// A cached negative answer is still a cache hit; absence and "not
	// staff" must stay distinguishable.
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutStaffFlag(ctx, "42", false, time.Hour))

	isStaff, ok, err := store.StaffFlag(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, isStaff)
}

func TestStore_StaffFlagExpiresIndependently(t *testing.T) {
	store, mr := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutAccessToken(ctx, "42", "a1", time.Hour))
	require.NoError(t, store.PutStaffFlag(ctx, "42", true, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := store.StaffFlag(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.AccessToken(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_DeleteStaffFlag(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutStaffFlag(ctx, "42", true, time.Hour))
	require.NoError(t, store.DeleteStaffFlag(ctx, "42"))

	_, ok, err := store.StaffFlag(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- Deletion ---

func TestStore_DeleteTokensKeepsStaffFlag(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutAccessToken(ctx, "42", "a1", time.Hour))
	require.NoError(t, store.PutRefreshToken(ctx, "42", "r1", time.Hour))
	require.NoError(t, store.PutStaffFlag(ctx, "42", true, time.Hour))

	require.NoError(t, store.DeleteTokens(ctx, "42"))

	_, ok, err := store.AccessToken(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.RefreshToken(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.StaffFlag(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_PurgeAllRemovesEverything(t *testing.T) {
	store, mr := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutAccessToken(ctx, "42", "a1", time.Hour))
	require.NoError(t, store.PutRefreshToken(ctx, "42", "r1", time.Hour))
	require.NoError(t, store.PutStaffFlag(ctx, "42", true, time.Hour))

	require.NoError(t, store.PurgeAll(ctx, "42"))

	assert.False(t, mr.Exists("access_token:42"))
	assert.False(t, mr.Exists("refresh_token:42"))
	assert.False(t, mr.Exists("is_staff:42"))
}

func TestStore_PurgeAllLeavesOtherPrincipalsUntouched(t *testing.T) {
	// Principal "4" is a substring of "42"; exact-key deletion must not
	// behave like a pattern match.
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutAccessToken(ctx, "42", "a42", time.Hour))
	require.NoError(t, store.PutAccessToken(ctx, "4", "a4", time.Hour))

	require.NoError(t, store.PurgeAll(ctx, "4"))

	got, ok, err := store.AccessToken(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a42", got)
}

func TestStore_PurgeAllMissingKeysIsNoError(t *testing.T) {
	store, _ := testStore(t)

	require.NoError(t, store.PurgeAll(context.Background(), "nobody"))
}
