package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSetAndCheckPassword(t *testing.T) {
	user := &User{}
	assert.False(t, user.HasPassword())
	assert.False(t, user.CheckPassword("anything"))

	require.NoError(t, user.SetPassword("s3cret"))
	assert.True(t, user.HasPassword())
	assert.True(t, user.CheckPassword("s3cret"))
	assert.False(t, user.CheckPassword("wrong"))
}

func TestParseRoleNormalizes(t *testing.T) {
	role, ok := ParseRole("  Admin ")
	require.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	_, ok = ParseRole("superuser")
	assert.False(t, ok)
}
