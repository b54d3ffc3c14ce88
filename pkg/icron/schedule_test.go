package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, expr := range []string{"0 */10 * * * *", "*/5 * * * *", "@every 10m", "@hourly"} {
		_, err := Parse(expr)
		assert.NoError(t, err, expr)
	}

	_, err := Parse("not a cron")
	assert.Error(t, err)
}

func TestGetTriggerInfo(t *testing.T) {
	ref := time.Date(2026, 3, 1, 10, 25, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 */10 * * * *", ref)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), info.Next)
	assert.Equal(t, 5*time.Minute, info.TimeUntilNext)
	assert.False(t, info.Last.After(ref))
	assert.Equal(t, "0 */10 * * * *", info.Expression)
}

func TestGetTriggerInfoInvalid(t *testing.T) {
	_, err := GetTriggerInfo("61 * * * * *", time.Now())
	assert.Error(t, err)
}
