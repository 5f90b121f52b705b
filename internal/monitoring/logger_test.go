package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	orig := Logf
	t.Cleanup(func() { Logf = orig })
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := capture(t)
	Logf("hello %d", 1)
	assert.Equal(t, []string{"hello 1"}, *lines)

	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("dropped") })
	assert.Len(t, *lines, 1)
}

func TestComponent(t *testing.T) {
	logf := Component(" tracker ")
	lines := capture(t)

	logf("roster has %d devices", 3)
	assert.Equal(t, []string{"[tracker] roster has 3 devices"}, *lines)
}
