package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrRuperto3/TAO-App/internal/adapter"
	"github.com/MrRuperto3/TAO-App/internal/models"
)

func validSnapshot(t *testing.T) *models.SnapshotWithPositions {
	t.Helper()
	snap, err := BuildSnapshot(testWallet, time.Date(2024, 3, 10, 0, 5, 0, 0, time.UTC), d("400"), d("1"), []adapter.StakeBalance{
		{Netuid: 0, Hotkey: "5R", Alpha: d("2"), ValueTao: d("2")},
		{Netuid: 8, Hotkey: "5HK", Alpha: d("10"), ValueTao: d("0.5")},
	})
	require.NoError(t, err)
	return snap
}

func TestValidateSnapshot_Valid(t *testing.T) {
	result := ValidateSnapshot(validSnapshot(t))
	assert.True(t, result.Valid)
	assert.Empty(t, result.Violations)
	assert.NoError(t, result.Err())
}

func TestValidateSnapshot_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *models.SnapshotWithPositions)
		want   string
	}{
		{
			name:   "negative value",
			mutate: func(s *models.SnapshotWithPositions) { s.Positions[1].ValueTao = "-0.5" },
			want:   "value_tao",
		},
		{
			name:   "unparseable usd",
			mutate: func(s *models.SnapshotWithPositions) { s.Positions[0].ValueUSD = "n/a" },
			want:   "value_usd",
		},
		{
			name:   "duplicate key",
			mutate: func(s *models.SnapshotWithPositions) { s.Positions = append(s.Positions, s.Positions[1]) },
			want:   "duplicate position subnet/8/5HK",
		},
		{
			name: "root with hotkey",
			mutate: func(s *models.SnapshotWithPositions) {
				hk := "5R"
				s.Positions[0].Hotkey = &hk
			},
			want: "root position must have netuid 0",
		},
		{
			name:   "foreign position",
			mutate: func(s *models.SnapshotWithPositions) { s.Positions[1].SnapshotID = "other" },
			want:   `belongs to snapshot "other"`,
		},
		{
			name: "total below positions",
			mutate: func(s *models.SnapshotWithPositions) {
				total := "2"
				s.TotalValueTao = &total
			},
			want: "below the position sum 2.5",
		},
		{
			name:   "empty address",
			mutate: func(s *models.SnapshotWithPositions) { s.Address = "" },
			want:   "address is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := validSnapshot(t)
			tt.mutate(snap)

			result := ValidateSnapshot(snap)
			assert.False(t, result.Valid)
			require.Error(t, result.Err())
			assert.Contains(t, result.Err().Error(), tt.want)
		})
	}
}
