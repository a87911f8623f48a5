package server

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoCapture reports that no markup arrived for the tab in time.
var ErrNoCapture = errors.New("no captured markup for tab")

// captureWait bounds how long Capture blocks for markup that has not arrived
// yet. Past this the check degrades to URL-only mode.
const captureWait = 2 * time.Second

// CaptureBuffer holds page markup pushed by the extension alongside
// page-complete events and serves it to the evaluator's capture requests.
// Markup is invalidated whenever the tab navigates again, so Phase 2 never
// scores a previous page's content.
type CaptureBuffer struct {
	mu      sync.Mutex
	pages   map[int]string
	waiters map[int][]chan string
}

// NewCaptureBuffer creates an empty buffer.
func NewCaptureBuffer() *CaptureBuffer {
	return &CaptureBuffer{
		pages:   make(map[int]string),
		waiters: make(map[int][]chan string),
	}
}

// Put stores rendered markup for a tab and wakes any pending Capture call.
func (c *CaptureBuffer) Put(tabID int, html string) {
	if html == "" {
		return
	}
	c.mu.Lock()
	c.pages[tabID] = html
	waiters := c.waiters[tabID]
	delete(c.waiters, tabID)
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- html
	}
}

// Invalidate drops stored markup for a tab (new navigation or tab close).
func (c *CaptureBuffer) Invalidate(tabID int) {
	c.mu.Lock()
	delete(c.pages, tabID)
	c.mu.Unlock()
}

// Capture returns the tab's current rendered markup, waiting briefly if the
// page has not reported in yet.
func (c *CaptureBuffer) Capture(ctx context.Context, tabID int) (string, error) {
	c.mu.Lock()
	if html, ok := c.pages[tabID]; ok {
		c.mu.Unlock()
		return html, nil
	}
	ch := make(chan string, 1)
	c.waiters[tabID] = append(c.waiters[tabID], ch)
	c.mu.Unlock()

	timer := time.NewTimer(captureWait)
	defer timer.Stop()

	select {
	case html := <-ch:
		return html, nil
	case <-timer.C:
		c.drop(tabID, ch)
		return "", ErrNoCapture
	case <-ctx.Done():
		c.drop(tabID, ch)
		return "", ctx.Err()
	}
}

func (c *CaptureBuffer) drop(tabID int, ch chan string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws := c.waiters[tabID]
	for i, w := range ws {
		if w == ch {
			c.waiters[tabID] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
}
