package game

import "fmt"

type AttackResult struct {
	Hit      bool     `json:"hit"`
	Sunk     bool     `json:"sunk"`
	ShipType ShipType `json:"shipType,omitempty"`
}

// Engine holds the board rules. Implementations must be pure apart from the
// documented mutation in ProcessAttack.
type Engine interface {
	GenerateEmptyBoard() Board
	ValidatePlacement(fleet []Ship, board *Board) ValidationResult
	PlaceShipsOnBoard(board Board, fleet []Ship) (Board, error)
	ProcessAttack(board *Board, x, y int) (AttackResult, error)
	CheckWinCondition(board *Board) bool
}

type DefaultEngine struct{}

var _ Engine = DefaultEngine{}

func NewEngine() DefaultEngine {
	return DefaultEngine{}
}

func (DefaultEngine) GenerateEmptyBoard() Board {
	var board Board
	for x := 0; x < BoardSize; x++ {
		for y := 0; y < BoardSize; y++ {
			board.Grid[x][y] = Cell{X: x, Y: y}
		}
	}
	board.Ships = []Ship{}
	return board
}

func (DefaultEngine) ValidatePlacement(fleet []Ship, board *Board) ValidationResult {
	return ValidatePlacement(fleet, board)
}

// PlaceShipsOnBoard returns a copy of board carrying fleet. Any ships already
// on the board are replaced.
func (DefaultEngine) PlaceShipsOnBoard(board Board, fleet []Ship) (Board, error) {
	if !IsValidPlacement(fleet, &board) {
		result := ValidatePlacement(fleet, &board)
		return Board{}, ErrInvalidPlacement.WithDetails(result.Errors)
	}

	placed := board.Clone()
	for x := range placed.Grid {
		for y := range placed.Grid[x] {
			placed.Grid[x][y].ShipID = ""
		}
	}
	placed.Ships = make([]Ship, 0, len(fleet))
	for _, ship := range fleet {
		ship.Size = ShipConfig[ship.Type]
		ship.IsSunk = false
		for _, c := range ship.Cells() {
			placed.Grid[c.X][c.Y].ShipID = ship.Type
		}
		placed.Ships = append(placed.Ships, ship)
	}
	return placed, nil
}

// ProcessAttack marks (x, y) as hit and updates the sunk flag of the ship
// there, if any.
func (DefaultEngine) ProcessAttack(board *Board, x, y int) (AttackResult, error) {
	if !InBounds(x, y) {
		return AttackResult{}, fmt.Errorf("attack (%d,%d): %w", x, y, ErrOutOfRange)
	}
	cell := &board.Grid[x][y]
	if cell.IsHit {
		return AttackResult{}, fmt.Errorf("attack (%d,%d): %w", x, y, ErrAlreadyHit)
	}
	cell.IsHit = true
	if cell.ShipID == "" {
		return AttackResult{}, nil
	}

	result := AttackResult{Hit: true, ShipType: cell.ShipID}
	for i := range board.Ships {
		ship := &board.Ships[i]
		if ship.Type != cell.ShipID || ship.IsSunk {
			continue
		}
		if allHit(board, ship.Cells()) {
			ship.IsSunk = true
			result.Sunk = true
		}
		break
	}
	return result, nil
}

func allHit(board *Board, cells []Coordinate) bool {
	for _, c := range cells {
		if !board.Grid[c.X][c.Y].IsHit {
			return false
		}
	}
	return true
}

// CheckWinCondition reports whether every ship on the defending board is sunk.
// A board without ships counts as defeated; callers must not ask before the
// fleet is placed.
func (DefaultEngine) CheckWinCondition(board *Board) bool {
	for _, ship := range board.Ships {
		if !ship.IsSunk {
			return false
		}
	}
	return true
}
