package testenv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ExampleNewTestLogger() {
	l := NewTestLogger()

	l.Info("propagation finished")
	l.Warn("dropping field", "schema", "article", "field", "legacy")
	l.Error("bulk chunk failed", "error", errors.New("boom"))

	// Output:
	// [0] INFO: propagation finished
	// [1] WARN: dropping field schema=article, field=legacy
	// [2] ERROR: bulk chunk failed error=boom
}

func ExampleWithIgnoreDebug() {
	l := NewTestLogger(WithIgnoreDebug())

	l.Debug("resolve round", "depth", 1)
	l.Info("done")
	l.Info("odd args", "lonely")

	// Output:
	// [0] INFO: done
	// [1] INFO: odd args !BADKEY=lonely
}

func TestTestLoggerLines(t *testing.T) {
	l := NewTestLogger(WithWriter(nil))
	l.Debug("round", "depth", 2)
	l.Warn("conflict", "id", "a")

	assert.Equal(t, []string{"DEBUG: round depth=2", "WARN: conflict id=a"}, l.Lines())
	assert.True(t, l.Contains("WARN: conflict"))
	assert.False(t, l.Contains("ERROR"))
}
