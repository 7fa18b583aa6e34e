package models

// FriendRequestStatus 定义好友请求的状态
type FriendRequestStatus string

const (
	FriendRequestStatusPending  FriendRequestStatus = "pending"
	FriendRequestStatusAccepted FriendRequestStatus = "accepted"
	FriendRequestStatusRejected FriendRequestStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s FriendRequestStatus) IsTerminal() bool {
	return s == FriendRequestStatusAccepted || s == FriendRequestStatusRejected
}

// FriendRequest 代表一个好友请求记录
//
// PairKey holds the unordered pair so that the table carries at most one
// request per pair of users, whichever of them sent it.
type FriendRequest struct {
	BaseModel
	SenderID    string              `gorm:"type:varchar(36);not null;index:idx_friend_request_sender" json:"senderId"`
	RecipientID string              `gorm:"type:varchar(36);not null;index:idx_friend_request_recipient" json:"recipientId"`
	PairKey     string              `gorm:"type:varchar(80);not null;uniqueIndex:idx_friend_request_pair" json:"-"`
	Status      FriendRequestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
}

// TableName 指定 FriendRequest 模型的表名。
func (FriendRequest) TableName() string {
	return "friend_requests"
}

// FriendRequestWithSender is a pending inbox entry: the request plus
// basic information about whoever sent it.
type FriendRequestWithSender struct {
	FriendRequest
	Sender *UserBasicInfo `json:"sender"`
}

// FriendRequestEventType 好友请求生命周期事件
type FriendRequestEventType string

const (
	FriendRequestEventCreated  FriendRequestEventType = "created"
	FriendRequestEventAccepted FriendRequestEventType = "accepted"
	FriendRequestEventRejected FriendRequestEventType = "rejected"
)

// FriendRequestEvent announces a change to a friend request to the user who
// should hear about it: the recipient of a new request, or the sender of an
// answered one.
type FriendRequestEvent struct {
	Type         FriendRequestEventType `json:"type"`
	NotifyUserID string                 `json:"notifyUserId"`
	Request      FriendRequest          `json:"request"`
	Actor        *UserBasicInfo         `json:"actor,omitempty"`
}
