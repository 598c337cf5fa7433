package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premia/internal/market"
)

func testSnapshot(at time.Time) *market.Snapshot {
	return &market.Snapshot{
		Timestamp:  at,
		Underlying: 24010,
		Rows: []market.ChainRow{
			{Strike: 23900, CallOI: 1000, CallVolume: 500, CallLTP: 120, PutOI: 900, PutVolume: 400, PutLTP: 30},
			{Strike: 24000, CallOI: 2000, CallVolume: 800, CallLTP: 50, PutOI: 3000, PutVolume: 800, PutLTP: 40},
			{Strike: 24100, CallOI: 1500, CallVolume: 600, CallLTP: 20, PutOI: 1100, PutVolume: 300, PutLTP: 110},
		},
	}
}

func TestExtractPCR(t *testing.T) {
	at := time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local)
	vec, err := Extract(testSnapshot(at), nil, 24000, nil)
	require.NoError(t, err)

	pcr, ok := vec.Get("pcr_oi")
	require.True(t, ok)
	assert.InDelta(t, 1.5, pcr, 1e-9)

	ratio, _ := vec.Get("call_put_price_ratio")
	assert.InDelta(t, 1.25, ratio, 1e-9)
}

func TestExtractMissingATMStrike(t *testing.T) {
	at := time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local)
	vec, err := Extract(testSnapshot(at), nil, 25000, nil)
	assert.Error(t, err)
	assert.Nil(t, vec)

	_, err = Extract(nil, nil, 24000, nil)
	assert.Error(t, err)
}

func TestExtractBackfillsKnownNames(t *testing.T) {
	at := time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local)
	known := []string{"pcr_oi", "some_future_feature"}
	vec, err := Extract(testSnapshot(at), nil, 24000, known)
	require.NoError(t, err)

	v, ok := vec.Get("some_future_feature")
	require.True(t, ok)
	assert.Zero(t, v)
}

func TestExtractChangeFeatures(t *testing.T) {
	at := time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local)
	prev := testSnapshot(at.Add(-2 * time.Minute))
	prev.Rows[1].CallLTP = 40
	cur := testSnapshot(at)
	history := []market.Snapshot{*prev, *cur}

	vec, err := Extract(cur, history, 24000, nil)
	require.NoError(t, err)

	chg, ok := vec.Get("call_ltp_change")
	require.True(t, ok)
	assert.InDelta(t, 10, chg, 1e-9)
	pct, _ := vec.Get("call_ltp_change_pct")
	assert.InDelta(t, 25, pct, 1e-9)
}

func TestExtractNoChangeFeaturesWithShortHistory(t *testing.T) {
	at := time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local)
	cur := testSnapshot(at)
	vec, err := Extract(cur, []market.Snapshot{*cur}, 24000, nil)
	require.NoError(t, err)
	_, ok := vec.Get("call_ltp_change")
	assert.False(t, ok)
}

func TestSanitizeBounds(t *testing.T) {
	v := NewVector()
	v.Set("pcr_oi", math.Inf(1))
	v.Set("atm_call_oi", 5e8)
	v.Set("call_ltp_change_pct", 400)
	sanitize(v)

	pcr, _ := v.Get("pcr_oi")
	assert.Zero(t, pcr)
	oi, _ := v.Get("atm_call_oi")
	assert.InDelta(t, 1000, oi, 1e-9) // 5e8×1e-5 夹紧到上界
	pct, _ := v.Get("call_ltp_change_pct")
	assert.InDelta(t, 100, pct, 1e-9)
}

func TestSessionFeatures(t *testing.T) {
	at := time.Date(2026, 8, 31, 9, 20, 0, 0, time.Local)
	vec, err := Extract(testSnapshot(at), nil, 24000, nil)
	require.NoError(t, err)
	opening, _ := vec.Get("is_market_opening")
	assert.Equal(t, 1.0, opening)
	mid, _ := vec.Get("is_mid_session")
	assert.Equal(t, 0.0, mid)
}
