package orchestrator

import (
	"context"
	"errors"
	"strings"

	"veritas-client/backend"
	"veritas-client/db"
	"veritas-client/llm"
)

// Terminal is how a chat reply ended
type Terminal int

const (
	ReplyCompleted Terminal = iota
	ReplyStopped
	ReplyErrored
)

func (t Terminal) String() string {
	switch t {
	case ReplyCompleted:
		return "completed"
	case ReplyStopped:
		return "stopped"
	case ReplyErrored:
		return "errored"
	}
	return "unknown"
}

// ChatInput is one user turn. An empty ConversationID starts a new conversation.
type ChatInput struct {
	Message        string
	ConversationID string
}

// ChatReply is the assistant side of a turn. Text holds whatever was shown
// to the user, including a partial reply when Terminal is ReplyStopped.
type ChatReply struct {
	ConversationID string
	Text           string
	Terminal       Terminal
	Transport      string
}

// Chat streams a reply to in. onUpdate receives the cumulative text after
// every frame and is never called once Abort has returned; it must not call
// Abort itself. A user abort is not an error: the partial reply is returned
// with ReplyStopped and persisted with a stopped marker.
func (o *Orchestrator) Chat(ctx context.Context, in ChatInput, onUpdate func(text string)) (*ChatReply, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, rejected("message is empty")
	}
	if err := o.checkReady(ctx); err != nil {
		return nil, err
	}
	if err := o.admit(ctx, backend.OpChat); err != nil {
		return nil, err
	}

	log := o.logger.With("op", "chat", "conversation", in.ConversationID)

	var history []llm.ChatMessage
	isNew := true
	if in.ConversationID != "" {
		conv, err := o.store.GetConversation(ctx, in.ConversationID)
		switch {
		case err == nil:
			history = conv.Messages
			isNew = false
		case errors.Is(err, db.ErrNotFound):
		default:
			log.Warn("Failed to load conversation: %v", err)
		}
	}

	chatCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.chatMu.Lock()
	o.chatAbort = cancel
	o.aborted = false
	o.chatMu.Unlock()
	defer func() {
		o.chatMu.Lock()
		o.chatAbort = nil
		o.chatMu.Unlock()
	}()

	reply := &ChatReply{ConversationID: in.ConversationID}

	handle, err := o.resolver.ResolveTransport(chatCtx, backend.OpChat)
	if err != nil {
		return o.endChat(ctx, reply, in, message, isNew, err)
	}
	reply.Transport = handle.Name()

	events, err := handle.StreamChat(chatCtx, llm.ChatRequest{
		Message:        message,
		ConversationID: in.ConversationID,
		History:        history,
	})
	if err != nil {
		return o.endChat(ctx, reply, in, message, isNew, err)
	}

	for {
		var (
			ev llm.StreamEvent
			ok bool
		)
		select {
		case <-chatCtx.Done():
			return o.endChat(ctx, reply, in, message, isNew, chatCtx.Err())
		case ev, ok = <-events:
		}
		if !ok {
			return o.endChat(ctx, reply, in, message, isNew, llm.ErrMalformed)
		}

		o.chatMu.Lock()
		if o.aborted {
			o.chatMu.Unlock()
			return o.endChat(ctx, reply, in, message, isNew, context.Canceled)
		}
		if ev.Err != nil {
			o.chatMu.Unlock()
			return o.endChat(ctx, reply, in, message, isNew, ev.Err)
		}
		if ev.Text != reply.Text {
			reply.Text = ev.Text
			if onUpdate != nil {
				onUpdate(reply.Text)
			}
		}
		o.chatMu.Unlock()

		if ev.Done {
			if ev.ConversationID != "" {
				reply.ConversationID = ev.ConversationID
			}
			return o.endChat(ctx, reply, in, message, isNew, nil)
		}
	}
}

// Abort stops the streaming chat reply in flight. It reports whether there
// was one to stop.
func (o *Orchestrator) Abort() bool {
	o.chatMu.Lock()
	defer o.chatMu.Unlock()
	if o.chatAbort == nil || o.aborted {
		return false
	}
	o.aborted = true
	o.chatAbort()
	return true
}

// endChat persists the turn unless it errored and settles the state
func (o *Orchestrator) endChat(ctx context.Context, reply *ChatReply, in ChatInput, message string, isNew bool, err error) (*ChatReply, error) {
	ae := Classify(err)
	switch {
	case ae == nil:
		reply.Terminal = ReplyCompleted
	case ae.Kind == Aborted:
		reply.Terminal = ReplyStopped
	default:
		reply.Terminal = ReplyErrored
		o.logger.Warn("Chat failed: %v", ae)
		return reply, o.fail(ctx, backend.OpChat, ae)
	}

	// The chat context is gone after an abort; persistence must still happen
	persistCtx := context.WithoutCancel(ctx)
	id, err := o.store.UpsertConversation(persistCtx, reply.ConversationID,
		llm.ChatMessage{Role: llm.RoleUser, Content: message},
		llm.ChatMessage{Role: llm.RoleAssistant, Content: reply.Text, Stopped: reply.Terminal == ReplyStopped},
	)
	if err != nil {
		o.logger.Error("Failed to save conversation: %v", err)
	} else {
		if isNew || id != in.ConversationID {
			if err := o.store.RenameConversation(persistCtx, id, db.TitleFromMessage(message)); err != nil {
				o.logger.Error("Failed to title conversation: %v", err)
			}
		}
		reply.ConversationID = id
	}

	o.settle(Status{Phase: Completed, Operation: backend.OpChat, Stopped: reply.Terminal == ReplyStopped})
	return reply, nil
}
