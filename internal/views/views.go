// Package views shapes conversations and messages into the JSON rows the
// dashboard renders.
package views

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"chat-dashboard/internal/chat"
	"chat-dashboard/internal/models"
)

// ConversationItem is one row of the conversation list.
type ConversationItem struct {
	ID             int64      `json:"id"`
	ContactID      int64      `json:"contact_id"`
	ContactName    string     `json:"contact_name"`
	Initials       string     `json:"initials"`
	PhoneNumber    string     `json:"phone_number"`
	ProfilePicture *string    `json:"profile_picture"`
	Preview        string     `json:"preview"`
	LastFromUser   bool       `json:"last_from_user"`
	LastMessageAt  *time.Time `json:"last_message_at"`
	RelativeTime   string     `json:"relative_time"`
	UnreadCount    int        `json:"unread_count"`
	IsPinned       bool       `json:"is_pinned"`
}

// MessageItem is one message of an opened conversation.
type MessageItem struct {
	models.Message
	Time     string `json:"time"`
	FromUser bool   `json:"from_user"`
}

// MessageGroup holds the messages sent on one calendar day.
type MessageGroup struct {
	Date     string        `json:"date"`
	Messages []MessageItem `json:"messages"`
}

// ThreadView is the selected conversation with its messages grouped by day.
type ThreadView struct {
	ID             int64          `json:"id"`
	ContactID      int64          `json:"contact_id"`
	ContactName    string         `json:"contact_name"`
	PhoneNumber    string         `json:"phone_number"`
	ProfilePicture *string        `json:"profile_picture"`
	IsPinned       bool           `json:"is_pinned"`
	IsArchived     bool           `json:"is_archived"`
	UnreadCount    int            `json:"unread_count"`
	Groups         []MessageGroup `json:"groups"`
}

// ConversationList converts listing rows. A previewLength of zero or less
// uses models.DefaultPreviewLength.
func ConversationList(list []models.ConversationSummary, now time.Time, previewLength int) []ConversationItem {
	if previewLength <= 0 {
		previewLength = models.DefaultPreviewLength
	}
	items := make([]ConversationItem, 0, len(list))
	for _, c := range list {
		name := c.Contact.DisplayName()
		item := ConversationItem{
			ID:             c.ID,
			ContactID:      c.ContactID,
			ContactName:    name,
			Initials:       Initials(name),
			PhoneNumber:    c.Contact.PhoneNumber,
			ProfilePicture: c.Contact.ProfilePicture,
			LastMessageAt:  c.LastMessageAt,
			UnreadCount:    c.UnreadCount,
			IsPinned:       c.IsPinned,
		}
		if c.LastMessage != nil {
			item.Preview = c.LastMessage.Preview(previewLength)
			item.LastFromUser = c.LastMessage.IsFromUser()
		}
		if c.LastMessageAt != nil {
			item.RelativeTime = RelativeTime(*c.LastMessageAt, now)
		}
		items = append(items, item)
	}
	return items
}

// Thread converts an opened conversation. Day boundaries are computed in loc.
func Thread(detail chat.ConversationDetail, now time.Time, loc *time.Location) ThreadView {
	if loc == nil {
		loc = time.UTC
	}
	view := ThreadView{
		ID:             detail.ID,
		ContactID:      detail.ContactID,
		ContactName:    detail.Contact.DisplayName(),
		PhoneNumber:    detail.Contact.PhoneNumber,
		ProfilePicture: detail.Contact.ProfilePicture,
		IsPinned:       detail.IsPinned,
		IsArchived:     detail.IsArchived,
		UnreadCount:    detail.UnreadCount,
		Groups:         []MessageGroup{},
	}

	lastDay := ""
	for _, m := range detail.Messages {
		sent := m.SentAt.In(loc)
		day := sent.Format("2006-01-02")
		if day != lastDay {
			view.Groups = append(view.Groups, MessageGroup{Date: DateHeader(sent, now.In(loc))})
			lastDay = day
		}
		g := &view.Groups[len(view.Groups)-1]
		g.Messages = append(g.Messages, MessageItem{
			Message:  m,
			Time:     sent.Format("15:04"),
			FromUser: m.IsFromUser(),
		})
	}
	return view
}

// RelativeTime renders the age of t as now, Nm, Nh or Nd.
func RelativeTime(t, now time.Time) string {
	minutes := int(now.Sub(t).Minutes())
	switch {
	case minutes < 1:
		return "now"
	case minutes < 60:
		return fmt.Sprintf("%dm", minutes)
	case minutes < 24*60:
		return fmt.Sprintf("%dh", minutes/60)
	default:
		return fmt.Sprintf("%dd", minutes/(24*60))
	}
}

// DateHeader labels the calendar day of t relative to now. Both times must
// be in the same location.
func DateHeader(t, now time.Time) string {
	y, m, d := t.Date()
	ny, nm, nd := now.Date()
	if y == ny && m == nm && d == nd {
		return "Today"
	}
	py, pm, pd := now.AddDate(0, 0, -1).Date()
	if y == py && m == pm && d == pd {
		return "Yesterday"
	}
	return t.Format("January 2, 2006")
}

// Initials returns up to two upper-case initials of name.
func Initials(name string) string {
	initials := make([]rune, 0, 2)
	for _, word := range strings.Fields(name) {
		initials = append(initials, unicode.ToUpper([]rune(word)[0]))
		if len(initials) == 2 {
			break
		}
	}
	return string(initials)
}
