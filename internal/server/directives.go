package server

import (
	"sync"

	"github.com/ppiankov/navguard/internal/model"
)

// Notification is the overlay directive delivered at most once per resolved
// navigation.
type Notification struct {
	Severity model.Action  `json:"severity"`
	Verdict  model.Verdict `json:"verdict"`
}

// Directives is what the extension polls per tab.
type Directives struct {
	Badge        *model.Badge  `json:"badge,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// DirectiveBuffer retains the latest badge per tab and queues at most one
// pending notification, consumed on read. It implements the reconciler's UI
// sink on behalf of a polling extension.
type DirectiveBuffer struct {
	mu   sync.Mutex
	tabs map[int]*Directives
}

// NewDirectiveBuffer creates an empty buffer.
func NewDirectiveBuffer() *DirectiveBuffer {
	return &DirectiveBuffer{tabs: make(map[int]*Directives)}
}

// SetBadge replaces the tab's badge directive.
func (b *DirectiveBuffer) SetBadge(tabID int, badge model.Badge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.get(tabID)
	d.Badge = &badge
}

// ClearBadge removes the tab's badge directive.
func (b *DirectiveBuffer) ClearBadge(tabID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.tabs[tabID]; ok {
		d.Badge = nil
	}
}

// Notify queues the notification. A newer notification replaces an unread
// one: only the latest resolved verdict matters for display.
func (b *DirectiveBuffer) Notify(tabID int, decision model.Decision, v model.Verdict) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.get(tabID)
	d.Notification = &Notification{Severity: decision.Action, Verdict: v}
}

// Take returns the tab's current directives, consuming any pending
// notification. The badge persists until replaced or cleared.
func (b *DirectiveBuffer) Take(tabID int) Directives {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.tabs[tabID]
	if !ok {
		return Directives{}
	}
	out := Directives{Badge: d.Badge, Notification: d.Notification}
	d.Notification = nil
	return out
}

// Drop discards all directives for a closed tab.
func (b *DirectiveBuffer) Drop(tabID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tabs, tabID)
}

func (b *DirectiveBuffer) get(tabID int) *Directives {
	d, ok := b.tabs[tabID]
	if !ok {
		d = &Directives{}
		b.tabs[tabID] = d
	}
	return d
}
