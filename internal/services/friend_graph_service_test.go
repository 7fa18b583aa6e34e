package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memories-social/internal/imtypes"
	"memories-social/internal/models"
	"memories-social/internal/session"
)

type friendFixture struct {
	users    *fakeUserRepo
	requests *fakeFriendRepo
	notifier *recordingNotifier
	svc      FriendGraphService

	alice, bob, carol *models.User
}

func newFriendFixture() *friendFixture {
	f := &friendFixture{
		users:    newFakeUserRepo(),
		requests: newFakeFriendRepo(),
		notifier: &recordingNotifier{},
	}
	f.alice = f.users.add("alice", true)
	f.bob = f.users.add("bob", true)
	f.carol = f.users.add("carol", false)
	f.svc = NewFriendGraphService(f.requests, f.users, session.NewIdentityResolver(f.users), f.notifier)
	return f
}

func sessionOf(u *models.User) session.Session {
	return session.Session{UserID: u.ID, Username: u.Username}
}

func TestSendRequestByHandleAndID(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture()

	req, err := f.svc.SendRequest(ctx, sessionOf(f.alice), "@bob")
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, req.SenderID)
	assert.Equal(t, f.bob.ID, req.RecipientID)
	assert.Equal(t, models.FriendRequestStatusPending, req.Status)

	req, err = f.svc.SendRequest(ctx, sessionOf(f.alice), f.carol.ID)
	require.NoError(t, err)
	assert.Equal(t, f.carol.ID, req.RecipientID)

	require.Len(t, f.notifier.events, 2)
	ev := f.notifier.events[0]
	assert.Equal(t, models.FriendRequestEventCreated, ev.Type)
	assert.Equal(t, f.bob.ID, ev.NotifyUserID)
	require.NotNil(t, ev.Actor)
	assert.Equal(t, "alice", ev.Actor.Username)
}

func TestSendRequestRejections(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture()

	_, err := f.svc.SendRequest(ctx, session.Session{}, "bob")
	assert.ErrorIs(t, err, imtypes.ErrPermissionDenied)

	_, err = f.svc.SendRequest(ctx, sessionOf(f.alice), "alice")
	assert.ErrorIs(t, err, ErrFriendRequestSelf)
	assert.ErrorIs(t, err, imtypes.ErrInvalidArgument)

	_, err = f.svc.SendRequest(ctx, sessionOf(f.alice), "nobody")
	assert.ErrorIs(t, err, imtypes.ErrNotFound)

	_, err = f.svc.SendRequest(ctx, sessionOf(f.alice), "  ")
	assert.ErrorIs(t, err, imtypes.ErrInvalidArgument)
}

func TestSendRequestDuplicateInEitherDirection(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture()

	_, err := f.svc.SendRequest(ctx, sessionOf(f.alice), "bob")
	require.NoError(t, err)

	_, err = f.svc.SendRequest(ctx, sessionOf(f.alice), "bob")
	assert.ErrorIs(t, err, imtypes.ErrDuplicateRelationship)

	_, err = f.svc.SendRequest(ctx, sessionOf(f.bob), "alice")
	assert.ErrorIs(t, err, imtypes.ErrDuplicateRelationship)
}

func TestSendRequestAfterRejectionStaysBlocked(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture()

	req, err := f.svc.SendRequest(ctx, sessionOf(f.alice), "bob")
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, sessionOf(f.bob), req.ID, false)
	require.NoError(t, err)

	_, err = f.svc.SendRequest(ctx, sessionOf(f.alice), "bob")
	assert.ErrorIs(t, err, ErrFriendRequestExists)
}

func TestSendRequestLosingInsertRace(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture()

	_, err := f.svc.SendRequest(ctx, sessionOf(f.bob), "alice")
	require.NoError(t, err)

	// the pre-check misses the row; the unique pair key still catches it
	f.requests.skipFind = true
	_, err = f.svc.SendRequest(ctx, sessionOf(f.alice), "bob")
	assert.ErrorIs(t, err, ErrFriendRequestExists)
}

func TestConcurrentSendRequestsCreateOneRow(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender, target := f.alice, "bob"
			if i%2 == 1 {
				sender, target = f.bob, "alice"
			}
			_, errs[i] = f.svc.SendRequest(ctx, sessionOf(sender), target)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, imtypes.ErrDuplicateRelationship)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.requests.requests, 1)
}

func TestRespondAcceptMakesFriends(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture()

	req, err := f.svc.SendRequest(ctx, sessionOf(f.alice), "bob")
	require.NoError(t, err)

	inbox, err := f.svc.ListPendingInbox(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.NotNil(t, inbox[0].Sender)
	assert.Equal(t, "alice", inbox[0].Sender.Username)

	accepted, err := f.svc.Respond(ctx, sessionOf(f.bob), req.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.FriendRequestStatusAccepted, accepted.Status)

	friends, err := f.svc.AreFriends(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	assert.True(t, friends)

	aliceFriends, err := f.svc.ListFriends(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceFriends, 1)
	assert.Equal(t, f.bob.ID, aliceFriends[0].ID)

	bobFriends, err := f.svc.ListFriends(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, bobFriends, 1)
	assert.Equal(t, f.alice.ID, bobFriends[0].ID)

	inbox, err = f.svc.ListPendingInbox(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, models.FriendRequestEventAccepted, last.Type)
	assert.Equal(t, f.alice.ID, last.NotifyUserID)
}

func TestRespondTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture()

	req, err := f.svc.SendRequest(ctx, sessionOf(f.alice), "bob")
	require.NoError(t, err)

	t.Run("only the recipient may answer", func(t *testing.T) {
		_, err := f.svc.Respond(ctx, sessionOf(f.alice), req.ID, true)
		assert.ErrorIs(t, err, imtypes.ErrPermissionDenied)
		_, err = f.svc.Respond(ctx, sessionOf(f.carol), req.ID, true)
		assert.ErrorIs(t, err, ErrNotRecipientOfRequest)
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := f.svc.Respond(ctx, sessionOf(f.bob), "missing", true)
		assert.ErrorIs(t, err, imtypes.ErrNotFound)
	})

	t.Run("answered once", func(t *testing.T) {
		rejected, err := f.svc.Respond(ctx, sessionOf(f.bob), req.ID, false)
		require.NoError(t, err)
		assert.Equal(t, models.FriendRequestStatusRejected, rejected.Status)

		_, err = f.svc.Respond(ctx, sessionOf(f.bob), req.ID, true)
		assert.ErrorIs(t, err, imtypes.ErrInvalidTransition)

		friends, err := f.svc.AreFriends(ctx, f.alice.ID, f.bob.ID)
		require.NoError(t, err)
		assert.False(t, friends)
	})
}

func TestConcurrentRespondsSettleOnce(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture()

	req, err := f.svc.SendRequest(ctx, sessionOf(f.alice), "bob")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Respond(ctx, sessionOf(f.bob), req.ID, i%2 == 0)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, imtypes.ErrInvalidTransition)
	}
	assert.Equal(t, 1, ok)
}

func TestListFriendsEmpty(t *testing.T) {
	f := newFriendFixture()
	friends, err := f.svc.ListFriends(context.Background(), f.carol.ID)
	require.NoError(t, err)
	assert.NotNil(t, friends)
	assert.Empty(t, friends)
}
