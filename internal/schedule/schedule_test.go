package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OancaAdrian/CRM/internal/model"
)

var day = model.DateOf(time.Date(2025, 3, 10, 15, 4, 5, 0, time.UTC))

func TestFollowUp_AllScores(t *testing.T) {
	expected := map[int]int{
		1: 1, 2: 3, 3: 5, 4: 10, 5: 30, 6: 90, 7: 150, 8: 270, 9: 365,
		10: 547, 11: 730, 12: 912, 13: 1095, 14: 1277, 15: 1460,
		16: 1825, 17: 2190, 18: 2555, 19: 2920,
	}
	for score := 1; score <= 19; score++ {
		got, ok := FollowUp(day, score)
		require.True(t, ok, "score %d", score)
		assert.Equal(t, day.AddDays(expected[score]), got, "score %d", score)
	}
}

func TestFollowUp_TwentyMeansNever(t *testing.T) {
	_, ok := FollowUp(day, 20)
	assert.False(t, ok)
}

func TestFollowUp_UnknownScores(t *testing.T) {
	for _, score := range []int{0, -1, 21, 99} {
		_, ok := FollowUp(day, score)
		assert.False(t, ok, "score %d", score)
	}
}

func TestResolve_ExplicitDateWins(t *testing.T) {
	score := 5
	d, err := Resolve(day, &score, "2026-01-15")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "2026-01-15", d.String())
}

func TestResolve_ExplicitDateDottedFormat(t *testing.T) {
	d, err := Resolve(day, nil, "15.01.2026")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "2026-01-15", d.String())
}

func TestResolve_BadExplicitDate(t *testing.T) {
	_, err := Resolve(day, nil, "next tuesday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestResolve_ScoreLookup(t *testing.T) {
	score := 2
	d, err := Resolve(day, &score, "")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, day.AddDays(3), *d)
}

func TestResolve_NoScoreNoDate(t *testing.T) {
	d, err := Resolve(day, nil, "")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestResolve_ScoreTwentyNoDate(t *testing.T) {
	score := 20
	d, err := Resolve(day, &score, "")
	require.NoError(t, err)
	assert.Nil(t, d)
}
