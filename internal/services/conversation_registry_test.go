package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memories-social/internal/imtypes"
	"memories-social/internal/models"
)

func TestFindOrCreateDirectIsStable(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	a, b := users.add("a", true), users.add("b", true)
	repo := newFakeConvoRepo()
	reg := NewConversationRegistry(repo, users)

	first, err := reg.FindOrCreateDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, first.IsGroup)
	assert.Equal(t, models.DirectConversationID(a.ID, b.ID), first.ID)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, first.ParticipantIDs())

	again, err := reg.FindOrCreateDirect(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, repo.createCount())

	// a fresh registry finds the stored row rather than creating another
	other := NewConversationRegistry(repo, users)
	fromOther, err := other.FindOrCreateDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, fromOther.ID)
	assert.Equal(t, 1, repo.createCount())
}

func TestFindOrCreateDirectRejectsBadPairs(t *testing.T) {
	reg := NewConversationRegistry(newFakeConvoRepo(), newFakeUserRepo())

	_, err := reg.FindOrCreateDirect(context.Background(), "u1", "u1")
	assert.ErrorIs(t, err, ErrConversationWithSelf)
	assert.ErrorIs(t, err, imtypes.ErrInvalidArgument)

	_, err = reg.FindOrCreateDirect(context.Background(), "u1", "")
	assert.ErrorIs(t, err, imtypes.ErrInvalidArgument)
}

func TestFindOrCreateDirectFindsLegacyConversation(t *testing.T) {
	ctx := context.Background()
	repo := newFakeConvoRepo()
	legacy := &models.Conversation{Participants: models.NewParticipants([]string{"u1", "u2"}, time.Now().UTC())}
	require.NoError(t, repo.Create(ctx, legacy))

	reg := NewConversationRegistry(repo, newFakeUserRepo())
	got, err := reg.FindOrCreateDirect(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, got.ID)
	assert.Equal(t, 1, repo.createCount())
}

func TestFindOrCreateDirectConvergesAcrossNodes(t *testing.T) {
	ctx := context.Background()
	repo := newFakeConvoRepo()

	// every node passes its lookups before any insert lands
	const nodes = 6
	var arrived sync.WaitGroup
	arrived.Add(nodes)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()
	repo.beforeCreate = func() {
		arrived.Done()
		<-release
	}

	var wg sync.WaitGroup
	ids := make([]string, nodes)
	errs := make([]error, nodes)
	for i := 0; i < nodes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg := NewConversationRegistry(repo, newFakeUserRepo())
			a, b := "u1", "u2"
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := reg.FindOrCreateDirect(ctx, a, b)
			errs[i] = err
			if err == nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, repo.createCount())
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	a, b, c := users.add("a", true), users.add("b", true), users.add("c", true)
	reg := NewConversationRegistry(newFakeConvoRepo(), users)

	group, err := reg.CreateGroup(ctx, "  weekend  ", []string{b.ID, c.ID, b.ID, a.ID}, a.ID)
	require.NoError(t, err)
	assert.True(t, group.IsGroup)
	assert.Equal(t, "weekend", group.Name)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, group.ParticipantIDs())

	_, err = reg.CreateGroup(ctx, " ", []string{b.ID}, a.ID)
	assert.ErrorIs(t, err, ErrGroupNameRequired)

	_, err = reg.CreateGroup(ctx, "solo", []string{a.ID}, a.ID)
	assert.ErrorIs(t, err, ErrGroupTooSmall)

	_, err = reg.CreateGroup(ctx, "ghosts", []string{"missing"}, a.ID)
	assert.ErrorIs(t, err, imtypes.ErrNotFound)

	second, err := reg.CreateGroup(ctx, "weekend", []string{b.ID}, a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, group.ID, second.ID, "groups are never deduplicated")
}

func TestRequireParticipantAndList(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	a, b, c := users.add("a", true), users.add("b", true), users.add("c", true)
	reg := NewConversationRegistry(newFakeConvoRepo(), users)

	direct, err := reg.FindOrCreateDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = reg.CreateGroup(ctx, "all", []string{b.ID, c.ID}, a.ID)
	require.NoError(t, err)

	assert.NoError(t, reg.RequireParticipant(ctx, direct.ID, b.ID))
	err = reg.RequireParticipant(ctx, direct.ID, c.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.ErrorIs(t, err, imtypes.ErrPermissionDenied)
	assert.ErrorIs(t, reg.RequireParticipant(ctx, "missing", a.ID), imtypes.ErrNotFound)

	forA, err := reg.ListConversations(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, forA, 2)
	forC, err := reg.ListConversations(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, forC, 1)
}

func TestRegistryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	reg := NewConversationRegistry(newFakeConvoRepo(), newFakeUserRepo())

	c, err := reg.FindOrCreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	c.Participants[0].UserID = "intruder"

	got, err := reg.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.HasParticipant("intruder"))
}
