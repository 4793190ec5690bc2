package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func depsFrom(m map[string][]string) func(string) ([]string, error) {
	return func(name string) ([]string, error) {
		return m[name], nil
	}
}

func TestScheduleIsOrderIndependentOfRoots(t *testing.T) {
	deps := depsFrom(map[string][]string{
		"a": nil,
		"b": {"a"},
	})

	s1, err := Schedule([]string{"a", "b"}, deps)
	assert.Nil(t, err)
	s2, err := Schedule([]string{"b", "a"}, deps)
	assert.Nil(t, err)
	assert.Equal(t, s1, s2)
	assert.Equal(t, []string{"a", "b"}, s1)
}

func TestScheduleVisitsDependenciesLexicographically(t *testing.T) {
	deps := depsFrom(map[string][]string{
		"a": nil,
		"b": nil,
		"c": {"b", "a"},
	})

	s, err := Schedule([]string{"c"}, deps)
	assert.Nil(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, s)
}

func TestScheduleDetectsCycle(t *testing.T) {
	deps := depsFrom(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})

	_, err := Schedule([]string{"a"}, deps)
	assert.Error(t, err)

	var cycleErr *CycleError
	assert.True(t, isCycleError(err, &cycleErr))
}

func isCycleError(err error, target **CycleError) bool {
	ce, ok := err.(*CycleError)
	if ok {
		*target = ce
	}
	return ok
}

func TestScheduleOnlyReachesRequestedRoots(t *testing.T) {
	deps := depsFrom(map[string][]string{
		"a": nil,
		"b": nil,
	})

	s, err := Schedule([]string{"a"}, deps)
	assert.Nil(t, err)
	assert.Equal(t, []string{"a"}, s)
}
