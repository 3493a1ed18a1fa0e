package game

import "fmt"

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidatePlacement checks a fleet against the board and reports every rule
// the fleet breaks. Neither argument is modified.
func ValidatePlacement(fleet []Ship, board *Board) ValidationResult {
	violations := checkPlacement(fleet, boardSize(board), false)
	return ValidationResult{Valid: len(violations) == 0, Errors: violations}
}

// IsValidPlacement is ValidatePlacement that stops at the first violation.
func IsValidPlacement(fleet []Ship, board *Board) bool {
	return len(checkPlacement(fleet, boardSize(board), true)) == 0
}

func boardSize(board *Board) int {
	if board == nil {
		return BoardSize
	}
	return len(board.Grid)
}

// checkPlacement applies, in order: fleet composition, bounds, overlap and
// the one-cell buffer between distinct ships.
func checkPlacement(fleet []Ship, size int, stopEarly bool) []string {
	var violations []string
	report := func(format string, args ...any) bool {
		violations = append(violations, fmt.Sprintf(format, args...))
		return stopEarly
	}

	counts := make(map[ShipType]int, len(ShipConfig))
	for _, ship := range fleet {
		expected, known := ShipConfig[ship.Type]
		if !known {
			if report("unknown ship type %q", ship.Type) {
				return violations
			}
			continue
		}
		if ship.Size != 0 && ship.Size != expected {
			if report("invalid size for %s: expected %d, got %d", ship.Type, expected, ship.Size) {
				return violations
			}
		}
		counts[ship.Type]++
	}
	for _, shipType := range RequiredFleet {
		if counts[shipType] != 1 {
			if report("expected exactly 1 %s, got %d", shipType, counts[shipType]) {
				return violations
			}
		}
	}

	// cells[i] holds the in-bounds cells of fleet[i]; ships that could not be
	// laid out are left empty so later rules skip them.
	cells := make([][]Coordinate, len(fleet))
	for i, ship := range fleet {
		if _, known := ShipConfig[ship.Type]; !known {
			continue
		}
		if ship.Position.Orientation != Horizontal && ship.Position.Orientation != Vertical {
			if report("invalid orientation %q for %s", ship.Position.Orientation, ship.Type) {
				return violations
			}
			continue
		}
		shipCells := ship.Cells()
		inBounds := true
		for _, c := range shipCells {
			if c.X < 0 || c.X >= size || c.Y < 0 || c.Y >= size {
				inBounds = false
				break
			}
		}
		if !inBounds {
			if report("%s at (%d,%d) %s is out of bounds", ship.Type, ship.Position.X, ship.Position.Y, ship.Position.Orientation) {
				return violations
			}
			continue
		}
		cells[i] = shipCells
	}

	occupied := make(map[Coordinate]int)
	overlapping := make(map[[2]int]bool)
	for i := range fleet {
		for _, c := range cells[i] {
			owner, taken := occupied[c]
			if !taken {
				occupied[c] = i
				continue
			}
			pair := [2]int{owner, i}
			if overlapping[pair] {
				continue
			}
			overlapping[pair] = true
			if report("%s overlaps %s at (%d,%d)", fleet[i].Type, fleet[owner].Type, c.X, c.Y) {
				return violations
			}
		}
	}

	tooClose := make(map[[2]int]bool)
	for i := range fleet {
		for _, c := range cells[i] {
			for dx := -1; dx <= 1; dx++ {
				for dy := -1; dy <= 1; dy++ {
					owner, taken := occupied[Coordinate{X: c.X + dx, Y: c.Y + dy}]
					if !taken || owner == i {
						continue
					}
					pair := [2]int{min(owner, i), max(owner, i)}
					if tooClose[pair] || overlapping[pair] || overlapping[[2]int{pair[1], pair[0]}] {
						continue
					}
					tooClose[pair] = true
					if report("%s is too close to %s", fleet[pair[1]].Type, fleet[pair[0]].Type) {
						return violations
					}
				}
			}
		}
	}

	return violations
}
