package imtypes

import "errors"

// 跨 storage / services / handlers 共享的错误类型。
// 调用方使用 errors.Is 判断类别；具体原因通过 %w 包装保留。
var (
	// ErrNotFound 目标记录不存在。
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition 好友请求已不处于 pending 状态。
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicateRelationship 两个用户之间已存在好友请求（任意方向、任意状态）。
	ErrDuplicateRelationship = errors.New("relationship already exists")
	// ErrTransient 存储暂时不可用（网络、超时等），可重试。
	ErrTransient = errors.New("transient storage failure")
	// ErrPermissionDenied 存储或业务规则拒绝了当前用户的操作。
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidArgument 输入不合法，例如给自己发好友请求或消息内容为空。
	ErrInvalidArgument = errors.New("invalid argument")
)
