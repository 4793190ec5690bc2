package cleanup

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestDischargeRunsGuardsInReverseOrder(t *testing.T) {
	s := NewScope(logrus.NewEntry(logrus.New()))

	var order []int
	s.Add(func() { order = append(order, 1) })
	s.Add(func() { order = append(order, 2) })
	s.Add(func() { order = append(order, 3) })

	s.Discharge()

	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestDischargeIsIdempotent(t *testing.T) {
	s := NewScope(logrus.NewEntry(logrus.New()))

	calls := 0
	s.Add(func() { calls++ })

	s.Discharge()
	s.Discharge()

	assert.Equal(t, 1, calls, "expected guard to run exactly once")
}

func TestTagGuardSkippedWhenDisabled(t *testing.T) {
	s := NewScope(logrus.NewEntry(logrus.New()))

	called := false
	s.TagGuard(false, func() { called = true })
	s.Discharge()

	assert.False(t, called, "expected tag guard to be skipped when enabled=false")
}

func TestTempDirGuardRemovesDirectoryOnDischarge(t *testing.T) {
	s := NewScope(logrus.NewEntry(logrus.New()))

	dir := t.TempDir()
	s.TempDirGuard(dir)
	s.Discharge()

	assert.NoDirExists(t, dir)
}
