package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainFixture() *Snapshot {
	return &Snapshot{
		Timestamp:  time.Now(),
		Underlying: 24012,
		Rows: []ChainRow{
			{Strike: 23900, CallOI: 100, PutOI: 300, CallVolume: 50, PutVolume: 90},
			{Strike: 24000, CallOI: 200, PutOI: 400, CallVolume: 60, PutVolume: 110},
			{Strike: 24100, CallOI: 150, PutOI: 250, CallVolume: 40, PutVolume: 70},
		},
	}
}

func TestRowLookup(t *testing.T) {
	s := chainFixture()
	row, ok := s.Row(24000)
	require.True(t, ok)
	assert.Equal(t, 200.0, row.CallOI)

	_, ok = s.Row(25000)
	assert.False(t, ok)

	var nilSnap *Snapshot
	_, ok = nilSnap.Row(24000)
	assert.False(t, ok)
}

func TestATMStrike(t *testing.T) {
	s := chainFixture()
	assert.Equal(t, 24000.0, s.ATMStrike(), "距标的价 24012 最近的行权价")

	empty := &Snapshot{Underlying: 24000}
	assert.Zero(t, empty.ATMStrike())

	bad := &Snapshot{Underlying: 0, Rows: []ChainRow{{Strike: 24000}}}
	assert.Zero(t, bad.ATMStrike())
}

func TestTotals(t *testing.T) {
	s := chainFixture()
	tot := s.Totals()
	assert.Equal(t, 450.0, tot.CallOI)
	assert.Equal(t, 950.0, tot.PutOI)
	assert.Equal(t, 150.0, tot.CallVolume)
	assert.Equal(t, 270.0, tot.PutVolume)
}

const validChainJSON = `{
  "records": {
    "underlyingValue": 24012.5,
    "data": [
      {
        "strikePrice": 24000,
        "CE": {"openInterest": 200, "changeinOpenInterest": 20, "totalTradedVolume": 60, "lastPrice": 55.5},
        "PE": {"openInterest": 400, "changeinOpenInterest": 45, "totalTradedVolume": 110, "lastPrice": 48.2}
      },
      {
        "strikePrice": 24100,
        "CE": {"openInterest": 150, "totalTradedVolume": 40, "lastPrice": 30.1}
      },
      {"strikePrice": 0}
    ]
  }
}`

func TestDecodeChainPayload(t *testing.T) {
	now := time.Now()
	snap, err := DecodeChainPayload([]byte(validChainJSON), now)
	require.NoError(t, err)
	assert.Equal(t, 24012.5, snap.Underlying)
	assert.Equal(t, now, snap.Timestamp)
	require.Len(t, snap.Rows, 2, "零行权价行被丢弃")

	row, ok := snap.Row(24000)
	require.True(t, ok)
	assert.Equal(t, 55.5, row.CallLTP)
	assert.Equal(t, 48.2, row.PutLTP)
	assert.Equal(t, 45.0, row.PutChangeOI)

	// 缺 PE 腿的行保持零值
	row, ok = snap.Row(24100)
	require.True(t, ok)
	assert.Zero(t, row.PutOI)
	assert.Equal(t, 30.1, row.CallLTP)
}

func TestDecodeChainPayloadRejects(t *testing.T) {
	now := time.Now()

	_, err := DecodeChainPayload(nil, now)
	assert.Error(t, err)

	_, err = DecodeChainPayload([]byte("{not json"), now)
	assert.Error(t, err)

	_, err = DecodeChainPayload([]byte(`{"records":{"underlyingValue":0,"data":[]}}`), now)
	assert.Error(t, err, "缺标的价")

	_, err = DecodeChainPayload([]byte(`{"records":{"underlyingValue":24000,"data":{}}}`), now)
	assert.Error(t, err, "data 非数组")

	_, err = DecodeChainPayload([]byte(`{"records":{"underlyingValue":24000,"data":[{"strikePrice":0}]}}`), now)
	assert.Error(t, err, "无有效行")
}
