package chat

import "errors"

// Expected, recoverable-by-caller failures. Handlers map each to a status
// code; anything else is treated as an internal failure and logged.
var (
	ErrNotAMember            = errors.New("user is not an active member of the conversation")
	ErrForbidden             = errors.New("user lacks the required role for this operation")
	ErrNotSender             = errors.New("only the message sender may perform this operation")
	ErrAlreadyMember         = errors.New("user is already an active member")
	ErrSelfReplyForbidden    = errors.New("cannot send a private reply to your own message")
	ErrPrivateReplyForbidden = errors.New("private reply is not permitted for this message")
	ErrGroupSendForbidden    = errors.New("this account cannot post into group conversations")
	ErrEmptyMessage          = errors.New("message needs content or at least one attachment")
	ErrAlreadyFullyDelivered = errors.New("message can no longer be edited")
	ErrNotOwner              = errors.New("only the group owner may perform this operation")
	ErrTargetNotActiveMember = errors.New("target user is not an active member")
	ErrSelfConversation      = errors.New("cannot start a conversation with yourself")
	ErrEmptyGroupName        = errors.New("group name is required")
	ErrStorageFailure        = errors.New("attachment storage failed")
	ErrBlocked               = errors.New("messaging is blocked between these users")
)
