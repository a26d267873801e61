package repositories

import "errors"

var (
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrMembershipNotFound    = errors.New("membership not found")
	ErrMessageNotFound       = errors.New("message not found")
	ErrStatusNotFound        = errors.New("message status not found")
	ErrGroupNotFound         = errors.New("group not found")
	ErrRequestNotFound       = errors.New("join request not found")
	ErrDuplicateMembership   = errors.New("active membership already exists")
	ErrRequestAlreadyPending = errors.New("join request already pending")
)
