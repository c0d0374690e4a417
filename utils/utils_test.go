package utils_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/robertof/go-flextrack/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestReverse(t *testing.T) {
	in := []string{"a", "b", "c"}

	assert.Equal(t, []string{"c", "b", "a"}, utils.Reverse(in))
	assert.Equal(t, []string{"a", "b", "c"}, in)
	assert.Empty(t, utils.Reverse([]int(nil)))
}

func TestErrorIsAnyOf(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	wrapped := pkgerrors.Wrap(errB, "context")

	assert.True(t, utils.ErrorIsAnyOf(wrapped, errA, errB))
	assert.False(t, utils.ErrorIsAnyOf(wrapped, errA))
	assert.False(t, utils.ErrorIsAnyOf(nil, errA))
}

type name string

func (n name) String() string { return string(n) }

func TestToZeroLogArray(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)

	logger.Log().Array("Names", utils.ToZeroLogArray([]name{"x", "y"})).Send()
	assert.Contains(t, buf.String(), `"Names":["x","y"]`)

	many := make([]name, utils.MaxLoggedElements+3)
	for i := range many {
		many[i] = name(fmt.Sprint(i))
	}

	buf.Reset()
	logger.Log().Array("Names", utils.ToZeroLogArray(many)).Send()
	assert.Contains(t, buf.String(), `"... (+3 more)"]`)
}
