package game

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const BoardSize = 10

type ShipType string

const (
	Carrier    ShipType = "carrier"
	Battleship ShipType = "battleship"
	Cruiser    ShipType = "cruiser"
	Submarine  ShipType = "submarine"
	Destroyer  ShipType = "destroyer"
)

var ShipConfig = map[ShipType]int{
	Carrier:    5,
	Battleship: 4,
	Cruiser:    3,
	Submarine:  3,
	Destroyer:  2,
}

// RequiredFleet lists one of each ship type a player must place, largest first.
var RequiredFleet = []ShipType{Carrier, Battleship, Cruiser, Submarine, Destroyer}

type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Position struct {
	X           int         `json:"x"`
	Y           int         `json:"y"`
	Orientation Orientation `json:"orientation"`
}

type Ship struct {
	Type     ShipType `json:"type"`
	Size     int      `json:"size,omitempty"`
	Position Position `json:"position"`
	IsSunk   bool     `json:"isSunk"`
}

// Cells returns the coordinates the ship covers, starting at its anchor.
// The size comes from ShipConfig so callers cannot smuggle in a longer hull.
func (s Ship) Cells() []Coordinate {
	size := ShipConfig[s.Type]
	cells := make([]Coordinate, 0, size)
	for i := 0; i < size; i++ {
		switch s.Position.Orientation {
		case Horizontal:
			cells = append(cells, Coordinate{X: s.Position.X + i, Y: s.Position.Y})
		case Vertical:
			cells = append(cells, Coordinate{X: s.Position.X, Y: s.Position.Y + i})
		}
	}
	return cells
}

type Cell struct {
	X     int  `json:"x"`
	Y     int  `json:"y"`
	IsHit bool `json:"isHit"`
	// ShipID is the type of the occupying ship, if any.
	ShipID ShipType `json:"shipId,omitempty"`
}

// Board is one player's grid, indexed Grid[x][y].
type Board struct {
	PlayerID string                     `json:"playerId"`
	Grid     [BoardSize][BoardSize]Cell `json:"grid"`
	Ships    []Ship                     `json:"ships"`
}

func InBounds(x, y int) bool {
	return x >= 0 && x < BoardSize && y >= 0 && y < BoardSize
}

// Clone returns a copy that shares no memory with b.
func (b Board) Clone() Board {
	cp := b
	cp.Ships = append([]Ship(nil), b.Ships...)
	return cp
}

// Masked hides every ship cell the opponent has not hit yet and every ship
// still afloat.
func (b Board) Masked() Board {
	cp := b.Clone()
	for x := range cp.Grid {
		for y := range cp.Grid[x] {
			if !cp.Grid[x][y].IsHit {
				cp.Grid[x][y].ShipID = ""
			}
		}
	}
	sunk := make([]Ship, 0, len(cp.Ships))
	for _, ship := range cp.Ships {
		if ship.IsSunk {
			sunk = append(sunk, ship)
		}
	}
	cp.Ships = sunk
	return cp
}

func (b *Board) HasShips() bool {
	return len(b.Ships) > 0
}

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

type Game struct {
	ID          string     `json:"id"`
	Player1ID   string     `json:"player1Id"`
	Player2ID   string     `json:"player2Id"`
	Board1      Board      `json:"board1"`
	Board2      Board      `json:"board2"`
	CurrentTurn string     `json:"currentTurn"`
	Status      Status     `json:"status"`
	Winner      string     `json:"winner,omitempty"`
	RoomID      string     `json:"roomId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Version     int64      `json:"version"`
}

func (g *Game) HasPlayer(playerID string) bool {
	return playerID != "" && (g.Player1ID == playerID || g.Player2ID == playerID)
}

// Opponent returns the other player's id, or "" if playerID is not in the game.
func (g *Game) Opponent(playerID string) string {
	switch {
	case playerID == "":
		return ""
	case g.Player1ID == playerID:
		return g.Player2ID
	case g.Player2ID == playerID:
		return g.Player1ID
	default:
		return ""
	}
}

// BoardFor returns the board owned by playerID.
func (g *Game) BoardFor(playerID string) *Board {
	switch {
	case playerID == "":
		return nil
	case g.Player1ID == playerID:
		return &g.Board1
	case g.Player2ID == playerID:
		return &g.Board2
	default:
		return nil
	}
}

func (g *Game) Players() []string {
	var players []string
	for _, p := range []string{g.Player1ID, g.Player2ID} {
		if p != "" {
			players = append(players, p)
		}
	}
	return players
}

// ViewFor returns the game as playerID may see it: their own board in full and
// the opponent's board masked. Outsiders see both boards masked.
func (g Game) ViewFor(playerID string) Game {
	view := g
	view.Board1 = g.Board1.Clone()
	view.Board2 = g.Board2.Clone()
	if g.Player1ID != playerID || playerID == "" {
		view.Board1 = g.Board1.Masked()
	}
	if g.Player2ID != playerID || playerID == "" {
		view.Board2 = g.Board2.Masked()
	}
	return view
}

// ParseCoordinate converts "A1" style notation to x (column 0-9) and y (row 0-9).
func ParseCoordinate(coord string) (x, y int, err error) {
	coord = strings.TrimSpace(coord)
	if len(coord) < 2 {
		return 0, 0, fmt.Errorf("invalid coordinate: %q", coord)
	}
	row := strings.ToUpper(coord[:1])[0]
	if row < 'A' || row >= 'A'+BoardSize {
		return 0, 0, fmt.Errorf("invalid row: %c", row)
	}
	col, err := strconv.Atoi(coord[1:])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid column: %s", coord[1:])
	}
	if col < 1 || col > BoardSize {
		return 0, 0, fmt.Errorf("column out of bounds: %d", col)
	}
	return col - 1, int(row - 'A'), nil
}

// FormatCoordinate converts x and y back to "A1" notation.
func FormatCoordinate(x, y int) string {
	return fmt.Sprintf("%c%d", 'A'+y, x+1)
}
