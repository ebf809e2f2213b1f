package ui

import (
	"context"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"veritas-client/backend"
	"veritas-client/llm"
	"veritas-client/orchestrator"
	"veritas-client/utils"
)

// sendEntry is a multi-line entry that sends on Ctrl+Enter
type sendEntry struct {
	widget.Entry
	onCtrlEnter func()
}

func newSendEntry(onCtrlEnter func()) *sendEntry {
	e := &sendEntry{onCtrlEnter: onCtrlEnter}
	e.MultiLine = true
	e.Wrapping = fyne.TextWrapWord
	e.ExtendBaseWidget(e)
	return e
}

// TypedShortcut handles keyboard shortcuts
func (e *sendEntry) TypedShortcut(shortcut fyne.Shortcut) {
	if ks, ok := shortcut.(*desktop.CustomShortcut); ok {
		if (ks.KeyName == fyne.KeyReturn || ks.KeyName == fyne.KeyEnter) &&
			ks.Modifier == fyne.KeyModifierControl {
			if e.onCtrlEnter != nil {
				e.onCtrlEnter()
				return
			}
		}
	}
	e.Entry.TypedShortcut(shortcut)
}

// ChatView is the assistant conversation tab
type ChatView struct {
	d              *Desktop
	conversationID string

	titleLabel        *widget.Label
	messagesContainer *fyne.Container
	scroll            *container.Scroll
	inputEntry        *sendEntry
	sendButton        *widget.Button
	stopButton        *widget.Button
}

// NewChatView creates the chat tab of d
func NewChatView(d *Desktop) *ChatView {
	return &ChatView{d: d}
}

// Build creates the tab content
func (cv *ChatView) Build() fyne.CanvasObject {
	cv.titleLabel = widget.NewLabelWithStyle("New conversation", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	newButton := widget.NewButton("New", cv.NewConversation)

	cv.messagesContainer = container.NewVBox()
	cv.scroll = container.NewVScroll(cv.messagesContainer)

	cv.inputEntry = newSendEntry(cv.submit)
	cv.inputEntry.SetPlaceHolder("Ask about a claim... (Ctrl+Enter to send)")
	cv.inputEntry.SetMinRowsVisible(3)

	cv.sendButton = widget.NewButton("Send", cv.submit)
	cv.sendButton.Importance = widget.HighImportance
	cv.stopButton = widget.NewButton("Stop", func() {
		cv.d.orch.Abort()
	})
	cv.stopButton.Disable()

	header := container.NewBorder(nil, nil, nil, newButton, cv.titleLabel)
	input := container.NewBorder(nil, nil, nil, container.NewVBox(cv.sendButton, cv.stopButton), cv.inputEntry)
	return container.NewBorder(header, input, nil, nil, cv.scroll)
}

// update follows the orchestrator state
func (cv *ChatView) update(state State) {
	if cv.sendButton == nil {
		return
	}
	if state.Status.Busy() {
		cv.sendButton.Disable()
	} else {
		cv.sendButton.Enable()
	}
	if state.Status.Busy() && state.Status.Operation == backend.OpChat {
		cv.stopButton.Enable()
	} else {
		cv.stopButton.Disable()
	}
}

func (cv *ChatView) submit() {
	message := strings.TrimSpace(cv.inputEntry.Text)
	if message == "" {
		return
	}
	cv.inputEntry.SetText("")
	id := cv.conversationID
	reply := cv.addExchange(message)
	utils.SafeGo(cv.d.logger, "desktop chat", func() {
		cv.send(context.Background(), id, message, reply)
	})
}

// addExchange shows the user message and returns the bubble the reply
// streams into
func (cv *ChatView) addExchange(message string) *widget.RichText {
	cv.addMessage(llm.ChatMessage{Role: llm.RoleUser, Content: message})
	return cv.addMessage(llm.ChatMessage{Role: llm.RoleAssistant, Content: "*Thinking...*"})
}

func (cv *ChatView) addMessage(msg llm.ChatMessage) *widget.RichText {
	role := "You"
	if msg.Role == llm.RoleAssistant {
		role = "Veritas"
	}
	header := widget.NewLabelWithStyle(role, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})

	content := msg.Content
	if msg.Stopped {
		content += "\n\n*(stopped)*"
	}
	body := widget.NewRichTextFromMarkdown(content)
	body.Wrapping = fyne.TextWrapWord

	cv.messagesContainer.Add(container.NewVBox(header, body))
	cv.scroll.ScrollToBottom()
	return body
}

// send streams one reply into bubble. It blocks until the turn settles.
func (cv *ChatView) send(ctx context.Context, id, message string, bubble *widget.RichText) (*orchestrator.ChatReply, error) {
	reply, err := cv.d.orch.Chat(ctx, orchestrator.ChatInput{
		Message:        message,
		ConversationID: id,
	}, func(text string) {
		fyne.Do(func() {
			bubble.ParseMarkdown(text)
		})
	})

	fyne.Do(func() {
		if err != nil {
			bubble.ParseMarkdown("**Error:** " + err.Error())
			if orchestrator.KindOf(err) == orchestrator.AuthExpired {
				cv.d.showError(err)
			}
			return
		}
		text := reply.Text
		if reply.Terminal == orchestrator.ReplyStopped {
			text += "\n\n*(stopped)*"
		}
		bubble.ParseMarkdown(text)
		cv.conversationID = reply.ConversationID
		cv.d.sidebar.Refresh()
	})
	return reply, err
}

// LoadConversation replaces the view with a stored conversation
func (cv *ChatView) LoadConversation(ctx context.Context, id string) {
	conv, err := cv.d.store.GetConversation(ctx, id)
	if err != nil {
		cv.d.logger.Error("Failed to load conversation %s: %v", id, err)
		cv.d.showError(err)
		return
	}

	cv.messagesContainer.RemoveAll()
	for _, msg := range conv.Messages {
		cv.addMessage(msg)
	}
	cv.conversationID = conv.ID
	title := conv.Title
	if title == "" {
		title = conv.ID
	}
	cv.titleLabel.SetText(title)
}

// NewConversation clears the view; the next message starts a conversation
func (cv *ChatView) NewConversation() {
	cv.conversationID = ""
	cv.messagesContainer.RemoveAll()
	cv.titleLabel.SetText("New conversation")
}
