package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvironment(t *testing.T) {
	assert.Equal(t, Production, ParseEnvironment("production"))
	assert.Equal(t, Staging, ParseEnvironment("staging"))
	assert.Equal(t, Testing, ParseEnvironment("testing"))
	assert.Equal(t, Development, ParseEnvironment(""))
	assert.Equal(t, Development, ParseEnvironment("prod"))
	assert.Equal(t, Production, ParseEnvironment(" Production "))

	var e Environment
	assert.NoError(t, e.Decode("staging"))
	assert.Equal(t, Staging, e)
	assert.True(t, Production.IsProduction())
	assert.False(t, Staging.IsProduction())
}
