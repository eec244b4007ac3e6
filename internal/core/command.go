package core

import "github.com/olegsharov/converse-server/internal/store"

// CommandKind describes what the session wants to do.
type CommandKind int

const (
	// CommandJoinChannel subscribes the session to a container's channel.
	CommandJoinChannel CommandKind = iota
	// CommandLeaveChannel drops a channel subscription.
	CommandLeaveChannel
	// CommandSendMessage creates a message in a container.
	CommandSendMessage
	// CommandEditMessage edits a message the identity authored.
	CommandEditMessage
	// CommandDeleteMessage deletes a message the identity authored.
	CommandDeleteMessage
	// CommandReactMessage toggles an emoji reaction.
	CommandReactMessage
	// CommandMarkRead records read receipts and resets the unread counter.
	CommandMarkRead
	// CommandTypingStart signals the identity started typing.
	CommandTypingStart
	// CommandTypingStop signals the identity stopped typing.
	CommandTypingStop
	// CommandSetStatus sets an explicit presence status (e.g. away).
	CommandSetStatus
	// CommandListOnline requests the currently online identity list.
	CommandListOnline
)

// Command represents an action requested by a session. Commands from one
// session are processed in arrival order; commands from different sessions
// interleave arbitrarily.
type Command struct {
	Kind        CommandKind
	ContainerID int64
	MessageID   int64
	MessageIDs  []int64
	Content     string
	MessageType store.MessageType
	ReplyTo     *int64
	Emoji       string
	Status      store.PresenceStatus
}
