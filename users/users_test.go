package users_test

import (
	"testing"

	"github.com/jrsteele09/go-blog-session/users"
	"github.com/stretchr/testify/require"
)

func TestUser_DisplayName(t *testing.T) {
	tests := []struct {
		name string
		user *users.User
		want string
	}{
		{"nil user", nil, "Unknown user"},
		{"nickname wins", &users.User{Username: "alice", Nickname: "Ali"}, "Ali"},
		{"username fallback", &users.User{Username: "alice", Nickname: "  "}, "alice"},
		{"anonymous", &users.User{}, "Anonymous user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.user.DisplayName())
		})
	}
}

func TestRoleType_AtLeast(t *testing.T) {
	require.True(t, users.RoleAdmin.AtLeast(users.RoleEditor))
	require.True(t, users.RoleEditor.AtLeast(users.RoleEditor))
	require.False(t, users.RoleUser.AtLeast(users.RoleEditor))
	require.False(t, users.RoleType("ghost").AtLeast(users.RoleType("ghost")))
	require.Equal(t, "Super Administrator", users.RoleSuperAdmin.DisplayName())
	require.Equal(t, "Unknown role", users.RoleType("ghost").DisplayName())
}

func TestUser_CanAccessAdmin(t *testing.T) {
	require.True(t, (&users.User{Role: users.RoleEditor, Status: users.StatusActive}).CanAccessAdmin())
	require.False(t, (&users.User{Role: users.RoleAdmin, Status: users.StatusDisabled}).CanAccessAdmin())
	require.False(t, (&users.User{Role: users.RoleUser, Status: users.StatusActive}).CanAccessAdmin())
}

func TestUser_Clone(t *testing.T) {
	var nilUser *users.User
	require.Nil(t, nilUser.Clone())

	u := &users.User{ID: 7, Username: "alice"}
	c := u.Clone()
	c.Username = "bob"
	require.Equal(t, "alice", u.Username)
}
