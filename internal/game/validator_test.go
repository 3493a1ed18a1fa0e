package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withShip(fleet []Ship, i int, edit func(s *Ship)) []Ship {
	out := append([]Ship(nil), fleet...)
	edit(&out[i])
	return out
}

func TestValidatePlacement_Valid(t *testing.T) {
	result := ValidatePlacement(validFleet(), nil)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.True(t, IsValidPlacement(validFleet(), nil))

	// explicit matching sizes are accepted
	sized := validFleet()
	for i := range sized {
		sized[i].Size = ShipConfig[sized[i].Type]
	}
	assert.True(t, IsValidPlacement(sized, nil))
}

func TestValidatePlacement_Violations(t *testing.T) {
	tests := []struct {
		name  string
		fleet []Ship
		want  string
	}{
		{
			name:  "unknown type",
			fleet: append(validFleet(), Ship{Type: "rowboat", Position: Position{X: 7, Y: 0, Orientation: Horizontal}}),
			want:  `unknown ship type "rowboat"`,
		},
		{
			name:  "wrong size",
			fleet: withShip(validFleet(), 4, func(s *Ship) { s.Size = 3 }),
			want:  "invalid size for destroyer: expected 2, got 3",
		},
		{
			name:  "missing ship",
			fleet: validFleet()[:4],
			want:  "expected exactly 1 destroyer, got 0",
		},
		{
			name:  "duplicate ship",
			fleet: append(validFleet(), Ship{Type: Destroyer, Position: Position{X: 8, Y: 0, Orientation: Vertical}}),
			want:  "expected exactly 1 destroyer, got 2",
		},
		{
			name:  "bad orientation",
			fleet: withShip(validFleet(), 2, func(s *Ship) { s.Position.Orientation = "diagonal" }),
			want:  `invalid orientation "diagonal" for cruiser`,
		},
		{
			name:  "out of bounds",
			fleet: withShip(validFleet(), 0, func(s *Ship) { s.Position.X = 6 }),
			want:  "carrier at (6,0) horizontal is out of bounds",
		},
		{
			name:  "negative anchor",
			fleet: withShip(validFleet(), 4, func(s *Ship) { s.Position.X = -1 }),
			want:  "destroyer at (-1,8) horizontal is out of bounds",
		},
		{
			name: "overlap",
			fleet: withShip(validFleet(), 4, func(s *Ship) {
				s.Position = Position{X: 1, Y: 0, Orientation: Vertical}
			}),
			want: "destroyer overlaps carrier at (1,0)",
		},
		{
			name: "adjacent",
			fleet: withShip(validFleet(), 4, func(s *Ship) {
				s.Position = Position{X: 5, Y: 0, Orientation: Vertical}
			}),
			want: "destroyer is too close to carrier",
		},
		{
			name: "diagonal neighbour",
			fleet: withShip(validFleet(), 4, func(s *Ship) {
				s.Position = Position{X: 5, Y: 1, Orientation: Horizontal}
			}),
			want: "destroyer is too close to carrier",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidatePlacement(tt.fleet, nil)
			assert.False(t, result.Valid)
			assert.Contains(t, result.Errors, tt.want)
			assert.False(t, IsValidPlacement(tt.fleet, nil))
		})
	}
}

func TestValidatePlacement_ReportsEveryViolation(t *testing.T) {
	fleet := validFleet()[:3]
	fleet = withShip(fleet, 0, func(s *Ship) { s.Position.X = 8 })

	result := ValidatePlacement(fleet, nil)
	require.False(t, result.Valid)
	assert.Equal(t, []string{
		"expected exactly 1 submarine, got 0",
		"expected exactly 1 destroyer, got 0",
		"carrier at (8,0) horizontal is out of bounds",
	}, result.Errors)
}

func TestValidatePlacement_OverlapIsNotAlsoReportedAsAdjacent(t *testing.T) {
	fleet := withShip(validFleet(), 4, func(s *Ship) {
		s.Position = Position{X: 0, Y: 0, Orientation: Horizontal}
	})

	result := ValidatePlacement(fleet, nil)
	assert.Equal(t, []string{"destroyer overlaps carrier at (0,0)"}, result.Errors)
}
