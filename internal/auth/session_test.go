package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionTransitions(t *testing.T) {
	s := NewSession()
	var got []Event
	unsubscribe := s.Subscribe(func(ev Event) { got = append(got, ev) })

	assert.True(t, s.SignIn("u1"))
	assert.False(t, s.SignIn("u1"), "second sign-in is a no-op")
	assert.False(t, s.SignIn(""))
	assert.True(t, s.SignIn("u0"))
	assert.Equal(t, []string{"u0", "u1"}, s.Active())

	assert.True(t, s.SignOut("u1"))
	assert.False(t, s.SignOut("u1"))
	assert.False(t, s.IsSignedIn("u1"))

	if assert.Len(t, got, 3) {
		assert.Equal(t, SignedIn, got[0].Kind)
		assert.Equal(t, "u1", got[0].UserID)
		assert.Equal(t, SignedOut, got[2].Kind)
	}

	unsubscribe()
	s.SignIn("u2")
	assert.Len(t, got, 3)
}

func TestTenantContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TenantFrom(ctx))
	assert.Equal(t, "u1", TenantFrom(WithTenant(ctx, "u1")))
}
