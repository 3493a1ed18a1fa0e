package game

import (
	"context"
	"sync"
	"time"
)

// validFleet is a legal placement using the left half of the board, leaving
// columns 5 to 9 empty.
func validFleet() []Ship {
	return []Ship{
		{Type: Carrier, Position: Position{X: 0, Y: 0, Orientation: Horizontal}},
		{Type: Battleship, Position: Position{X: 0, Y: 2, Orientation: Horizontal}},
		{Type: Cruiser, Position: Position{X: 0, Y: 4, Orientation: Horizontal}},
		{Type: Submarine, Position: Position{X: 0, Y: 6, Orientation: Horizontal}},
		{Type: Destroyer, Position: Position{X: 0, Y: 8, Orientation: Horizontal}},
	}
}

func fleetCells(fleet []Ship) []Coordinate {
	var cells []Coordinate
	for _, ship := range fleet {
		cells = append(cells, ship.Cells()...)
	}
	return cells
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) ofType(eventType string) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
