package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	// 2026-08-31 是周一
	return time.Date(2026, 8, 31, hour, minute, 0, 0, time.Local)
}

func TestIsMarketHoursBoundaries(t *testing.T) {
	assert.False(t, IsMarketHours(at(9, 14)))
	assert.True(t, IsMarketHours(at(9, 15)), "开盘分钟含在内")
	assert.True(t, IsMarketHours(at(15, 29)))
	assert.False(t, IsMarketHours(at(15, 30)), "收盘分钟不含")
	assert.False(t, IsMarketHours(at(16, 0)))
}

func TestIsMarketHoursWeekend(t *testing.T) {
	saturday := time.Date(2026, 9, 5, 11, 0, 0, 0, time.Local)
	sunday := time.Date(2026, 9, 6, 11, 0, 0, 0, time.Local)
	assert.False(t, IsMarketHours(saturday))
	assert.False(t, IsMarketHours(sunday))
}

func TestSessionFlags(t *testing.T) {
	f := Session(at(9, 20))
	assert.True(t, f.Opening)
	assert.False(t, f.Mid)
	assert.False(t, f.Closing)

	f = Session(at(9, 30))
	assert.False(t, f.Opening, "09:30 起不再算开盘时段")

	f = Session(at(11, 0))
	assert.True(t, f.Mid)
	assert.False(t, f.Opening)
	assert.False(t, f.Closing)

	f = Session(at(14, 0))
	assert.False(t, f.Mid, "盘中时段止于 14:00")

	f = Session(at(15, 0))
	assert.True(t, f.Closing)
	assert.False(t, f.Mid)
}
