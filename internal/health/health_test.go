package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReport(t *testing.T) {
	c := NewChecker(func() int { return 3 }, func() int { return 1 })
	r := c.Report()

	assert.Equal(t, "ok", r.Status)
	assert.Equal(t, 3, r.Sessions)
	assert.Equal(t, 1, r.Running)
	assert.Positive(t, r.Goroutines)
	assert.GreaterOrEqual(t, r.UptimeSec, 0.0)
}

func TestReportNilCounters(t *testing.T) {
	r := NewChecker(nil, nil).Report()
	assert.Zero(t, r.Sessions)
	assert.Zero(t, r.Running)
}
