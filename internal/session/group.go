package session

import (
	"context"
	"log"
	"time"

	"github.com/mockmate/mockmate/internal/interview"
)

const defaultReconcileInterval = time.Second

// GroupMachine adapts the state machine to a group interview, where all
// participants share one question cursor and the server owns it. The local
// cursor is only ever reconciled toward the server's; an optimistic local
// advance survives at most until the next reconciliation tick.
type GroupMachine struct {
	*Machine
	feed     CursorFeed
	interval time.Duration
}

// NewGroupMachine wraps a machine with server-cursor reconciliation polling
// at the given interval (1s when non-positive).
func NewGroupMachine(m *Machine, feed CursorFeed, interval time.Duration) *GroupMachine {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &GroupMachine{Machine: m, feed: feed, interval: interval}
}

// Run polls the server cursor feed until ctx is done, reconciling the local
// cursor on every divergence.
func (g *GroupMachine) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.reconcile(ctx)
		}
	}
}

func (g *GroupMachine) reconcile(ctx context.Context) {
	g.mu.Lock()
	interviewID := g.interviewID
	member := g.memberInterviewID
	started := g.session != nil
	g.mu.Unlock()

	if !started {
		return
	}

	gc, err := g.feed.FetchGroupCursor(ctx, interviewID)
	if err != nil {
		log.Printf("group session: cursor feed: %v", err)
		return
	}

	server := interview.Cursor{
		Question: gc.CurrentIndex,
		FollowUp: gc.FollowUpFor(member),
	}

	g.mu.Lock()
	if server == g.cursor {
		g.mu.Unlock()
		return
	}
	g.cursor = server
	g.mu.Unlock()

	g.afterCursorMove()
}
