package models

import "strings"

// Friendship is the derived relation between two users that share an
// accepted friend request. It has no table of its own.
type Friendship struct {
	UserID1 string
	UserID2 string
}

// CanonicalPair returns a and b with the smaller id first.
func CanonicalPair(a, b string) (string, string) {
	if strings.Compare(a, b) > 0 {
		return b, a
	}
	return a, b
}

// PairKey is the direction independent key of a user pair.
func PairKey(a, b string) string {
	lo, hi := CanonicalPair(a, b)
	return lo + ":" + hi
}

// NewFriendship builds the friendship carried by an accepted request, in canonical order.
func NewFriendship(req *FriendRequest) Friendship {
	lo, hi := CanonicalPair(req.SenderID, req.RecipientID)
	return Friendship{UserID1: lo, UserID2: hi}
}

// OtherParty returns whichever side of the request is not userID.
// The second result is false when userID is on neither side.
func OtherParty(req *FriendRequest, userID string) (string, bool) {
	switch userID {
	case req.SenderID:
		return req.RecipientID, true
	case req.RecipientID:
		return req.SenderID, true
	}
	return "", false
}
