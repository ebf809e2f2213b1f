package ui

import (
	"context"
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"veritas-client/db"
	"veritas-client/utils"
)

// SidebarItem is a clickable list entry with an optional context menu
type SidebarItem struct {
	widget.BaseWidget
	label       *widget.Label
	onTapped    func()
	menu        func() *fyne.Menu
	highlighted bool
}

// NewSidebarItem creates an item showing text
func NewSidebarItem(text string, onTapped func(), menu func() *fyne.Menu) *SidebarItem {
	item := &SidebarItem{
		label:    widget.NewLabel(text),
		onTapped: onTapped,
		menu:     menu,
	}
	item.label.Truncation = fyne.TextTruncateEllipsis
	item.ExtendBaseWidget(item)
	return item
}

// CreateRenderer creates the renderer for the item
func (si *SidebarItem) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewStack(si.label))
}

// Tapped handles left-click
func (si *SidebarItem) Tapped(_ *fyne.PointEvent) {
	if si.onTapped != nil {
		si.onTapped()
	}
}

// TappedSecondary handles right-click
func (si *SidebarItem) TappedSecondary(pe *fyne.PointEvent) {
	if si.menu == nil {
		return
	}
	c := fyne.CurrentApp().Driver().CanvasForObject(si)
	if c == nil {
		return
	}
	widget.NewPopUpMenu(si.menu(), c).ShowAtPosition(pe.AbsolutePosition)
}

// SetHighlighted sets the highlighted state
func (si *SidebarItem) SetHighlighted(highlighted bool) {
	if si.highlighted == highlighted {
		return
	}
	si.highlighted = highlighted
	si.label.TextStyle = fyne.TextStyle{Bold: highlighted}
	si.label.Refresh()
}

// Sidebar lists past verifications and conversations
type Sidebar struct {
	widget.BaseWidget
	d *Desktop

	searchEntry *widget.Entry
	historyList *fyne.Container
	chatList    *fyne.Container
	chatItems   map[string]*SidebarItem
	filterText  string

	history       []db.HistoryItem
	conversations []db.ConversationSummary
}

// NewSidebar creates the sidebar of d
func NewSidebar(d *Desktop) *Sidebar {
	s := &Sidebar{
		d:           d,
		historyList: container.NewVBox(),
		chatList:    container.NewVBox(),
		chatItems:   make(map[string]*SidebarItem),
	}

	s.searchEntry = widget.NewEntry()
	s.searchEntry.SetPlaceHolder("Search...")
	s.searchEntry.OnChanged = func(text string) {
		s.filterText = text
		s.render()
	}

	s.ExtendBaseWidget(s)
	s.updateList()
	return s
}

// CreateRenderer creates the renderer for the sidebar
func (s *Sidebar) CreateRenderer() fyne.WidgetRenderer {
	clearButton := widget.NewButton("Clear history", s.confirmClearHistory)
	tabs := container.NewAppTabs(
		container.NewTabItem("History", container.NewBorder(nil, clearButton, nil, nil, container.NewVScroll(s.historyList))),
		container.NewTabItem("Chats", container.NewVScroll(s.chatList)),
	)
	return widget.NewSimpleRenderer(container.NewBorder(s.searchEntry, nil, nil, nil, tabs))
}

// Refresh reloads both lists from the store
func (s *Sidebar) Refresh() {
	s.updateList()
	s.BaseWidget.Refresh()
}

// updateList loads history and conversations, then rebuilds the lists
func (s *Sidebar) updateList() {
	ctx := context.Background()

	history, err := s.d.store.ListHistory(ctx)
	if err != nil {
		s.d.logger.Error("Failed to load history: %v", err)
		history = nil
	}
	conversations, err := s.d.store.ListConversations(ctx)
	if err != nil {
		s.d.logger.Error("Failed to load conversations: %v", err)
		conversations = nil
	}
	s.history = history
	s.conversations = conversations
	s.render()
}

func (s *Sidebar) render() {
	filter := strings.ToLower(strings.TrimSpace(s.filterText))

	s.historyList.Objects = nil
	for _, item := range s.history {
		if filter != "" && !strings.Contains(strings.ToLower(item.Preview), filter) {
			continue
		}
		item := item
		text := fmt.Sprintf("%s  %s", item.Result.Verdict, utils.Truncate(item.Preview, 40, "..."))
		s.historyList.Add(NewSidebarItem(text, func() {
			s.d.verifyView.showHistory(item)
			s.d.tabs.SelectIndex(0)
		}, nil))
	}

	s.chatList.Objects = nil
	s.chatItems = make(map[string]*SidebarItem)
	for _, conv := range s.conversations {
		title := conv.Title
		if title == "" {
			title = conv.ID
		}
		if filter != "" && !strings.Contains(strings.ToLower(title), filter) {
			continue
		}
		id := conv.ID
		item := NewSidebarItem(title, func() {
			s.d.showChat(id)
			s.highlight(id)
		}, func() *fyne.Menu {
			return fyne.NewMenu("",
				fyne.NewMenuItem("Rename", func() { s.renameConversation(id) }),
				fyne.NewMenuItem("Delete", func() { s.confirmDeleteConversation(id) }),
			)
		})
		s.chatItems[id] = item
		s.chatList.Add(item)
	}

	if s.d.chatView != nil {
		s.highlight(s.d.chatView.conversationID)
	}
	s.historyList.Refresh()
	s.chatList.Refresh()
}

func (s *Sidebar) highlight(id string) {
	for itemID, item := range s.chatItems {
		item.SetHighlighted(itemID == id)
	}
}

func (s *Sidebar) renameConversation(id string) {
	entry := widget.NewEntry()
	for _, conv := range s.conversations {
		if conv.ID == id {
			entry.SetText(conv.Title)
		}
	}
	dialog.ShowForm("Rename conversation", "Save", "Cancel",
		[]*widget.FormItem{widget.NewFormItem("Title", entry)},
		func(ok bool) {
			if !ok {
				return
			}
			if err := s.d.store.RenameConversation(context.Background(), id, strings.TrimSpace(entry.Text)); err != nil {
				s.d.showError(err)
				return
			}
			s.Refresh()
		}, s.d.window)
}

func (s *Sidebar) confirmDeleteConversation(id string) {
	dialog.ShowConfirm("Delete conversation", "Delete this conversation? This cannot be undone.", func(ok bool) {
		if ok {
			s.deleteConversation(context.Background(), id)
		}
	}, s.d.window)
}

func (s *Sidebar) deleteConversation(ctx context.Context, id string) {
	if err := s.d.store.DeleteConversation(ctx, id); err != nil {
		s.d.showError(err)
		return
	}
	if s.d.chatView.conversationID == id {
		s.d.chatView.NewConversation()
	}
	s.Refresh()
}

func (s *Sidebar) confirmClearHistory() {
	dialog.ShowConfirm("Clear history", "Remove every stored verification?", func(ok bool) {
		if ok {
			s.clearHistory(context.Background())
		}
	}, s.d.window)
}

func (s *Sidebar) clearHistory(ctx context.Context) {
	if err := s.d.store.ClearHistory(ctx); err != nil {
		s.d.showError(err)
		return
	}
	s.d.logger.Info("History cleared")
	s.Refresh()
}
