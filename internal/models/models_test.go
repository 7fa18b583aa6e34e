package models

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKeyIgnoresOrder(t *testing.T) {
	a, b := uuid.NewString(), uuid.NewString()

	assert.Equal(t, PairKey(a, b), PairKey(b, a))
	lo, hi := CanonicalPair(b, a)
	assert.LessOrEqual(t, lo, hi)
}

func TestDirectConversationIDIsSymmetricAndDistinct(t *testing.T) {
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()

	ab := DirectConversationID(a, b)
	assert.Equal(t, ab, DirectConversationID(b, a))
	assert.NotEqual(t, ab, DirectConversationID(a, c))

	_, err := uuid.Parse(ab)
	assert.NoError(t, err)
}

func TestOtherParty(t *testing.T) {
	req := &FriendRequest{SenderID: "alice", RecipientID: "bob"}

	other, ok := OtherParty(req, "alice")
	assert.True(t, ok)
	assert.Equal(t, "bob", other)

	other, ok = OtherParty(req, "bob")
	assert.True(t, ok)
	assert.Equal(t, "alice", other)

	_, ok = OtherParty(req, "carol")
	assert.False(t, ok)
}

func TestNewFriendshipIsCanonical(t *testing.T) {
	f := NewFriendship(&FriendRequest{SenderID: "zed", RecipientID: "amy"})
	assert.Equal(t, Friendship{UserID1: "amy", UserID2: "zed"}, f)
}

func TestFriendRequestStatusIsTerminal(t *testing.T) {
	assert.False(t, FriendRequestStatusPending.IsTerminal())
	assert.True(t, FriendRequestStatusAccepted.IsTerminal())
	assert.True(t, FriendRequestStatusRejected.IsTerminal())
}

func TestNewMessage(t *testing.T) {
	m, err := NewMessage("c1", "u1", "hi")
	require.NoError(t, err)

	id, err := uuid.Parse(m.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, time.UTC, m.CreatedAt.Location())
	assert.Zero(t, m.CreatedAt.Nanosecond()%1000, "created at keeps microsecond precision")
}

func TestCompareMessagesOrdersByTimeThenID(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := func(id string, at time.Time) Message {
		m := Message{}
		m.ID = id
		m.CreatedAt = at
		return m
	}

	msgs := []Message{
		msg("b", t0),
		msg("c", t0.Add(-time.Second)),
		msg("a", t0),
	}
	slices.SortFunc(msgs, func(x, y Message) int { return CompareMessages(&x, &y) })

	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.True(t, MessageLess(&msgs[0], &msgs[1]))
}

func TestConversationParticipants(t *testing.T) {
	now := time.Now()
	c := Conversation{Participants: NewParticipants([]string{"u1", "u2"}, now)}

	assert.Equal(t, []string{"u1", "u2"}, c.ParticipantIDs())
	assert.True(t, c.HasParticipant("u2"))
	assert.False(t, c.HasParticipant("u3"))
}

func TestBeforeCreateKeepsExplicitID(t *testing.T) {
	b := BaseModel{ID: "fixed"}
	require.NoError(t, b.BeforeCreate(nil))
	assert.Equal(t, "fixed", b.ID)

	var fresh BaseModel
	require.NoError(t, fresh.BeforeCreate(nil))
	assert.NotEmpty(t, fresh.ID)
}
