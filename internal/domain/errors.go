package domain

import "errors"

// Error kinds. Every *Error carries exactly one of these.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrTransient    = errors.New("transient failure")
)

// Error is a typed failure returned across the store, membership and delivery layers.
// errors.Is matches both the *Error value itself and its Kind.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrNotAdmin        = newError(ErrUnauthorized, "NOT_ADMIN", "only a conversation admin can perform this action")
	ErrNotParticipant  = newError(ErrUnauthorized, "NOT_PARTICIPANT", "you are not a member of this conversation")
	ErrNotMessageOwner = newError(ErrUnauthorized, "NOT_MESSAGE_OWNER", "only the message sender can perform this action")

	ErrConversationNotFound = newError(ErrNotFound, "CONVERSATION_NOT_FOUND", "conversation not found")
	ErrMessageNotFound      = newError(ErrNotFound, "MESSAGE_NOT_FOUND", "message not found")
	ErrUserNotFound         = newError(ErrNotFound, "USER_NOT_FOUND", "user not found")

	ErrInvalidTarget      = newError(ErrInvalidState, "INVALID_TARGET", "target user does not exist or is not a friend")
	ErrNotAFriend         = newError(ErrInvalidState, "NOT_A_FRIEND", "every member must be a friend of the creator")
	ErrAlreadyMember      = newError(ErrInvalidState, "ALREADY_MEMBER", "user is already a member")
	ErrAlreadyAdmin       = newError(ErrInvalidState, "ALREADY_ADMIN", "user is already an admin")
	ErrNotAMember         = newError(ErrInvalidState, "NOT_A_MEMBER", "user is not a member of this conversation")
	ErrNotAnAdmin         = newError(ErrInvalidState, "NOT_AN_ADMIN", "user is not an admin of this conversation")
	ErrCannotRemoveAdmin  = newError(ErrInvalidState, "CANNOT_REMOVE_ADMIN", "an admin cannot remove another admin")
	ErrNoPromotableMember = newError(ErrInvalidState, "NO_PROMOTABLE_MEMBER", "no other member can take over as admin")
	ErrGroupTooSmall      = newError(ErrInvalidState, "GROUP_TOO_SMALL", "a group needs at least one other member")
	ErrInvalidReply       = newError(ErrInvalidState, "INVALID_REPLY", "replied message does not belong to this conversation")
	ErrInvalidContent     = newError(ErrInvalidState, "INVALID_CONTENT", "content is empty or too long")

	ErrDuplicateConversation = newError(ErrConflict, "DUPLICATE_CONVERSATION", "conversation already exists")
)

// Transient wraps an infrastructure failure that may succeed on retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) {
		return err
	}
	return &Error{Kind: ErrTransient, Code: "TRANSIENT", Message: "temporary failure", Err: err}
}

// Code returns the machine-readable code of err, or "INTERNAL" for untyped errors.
func Code(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL"
}
