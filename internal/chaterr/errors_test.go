package chaterr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad input"), http.StatusBadRequest},
		{Auth("bad credentials"), http.StatusUnauthorized},
		{Authz("not a member"), http.StatusForbidden},
		{NotFound("chat not found"), http.StatusNotFound},
		{Conflict("already exists"), http.StatusConflict},
		{Storage("query failed", errors.New("driver error")), http.StatusInternalServerError},
		{Persistence("unavailable", errors.New("dial tcp: refused")), http.StatusServiceUnavailable},
		{Config("missing jwt_secret"), http.StatusInternalServerError},
		{errors.New("plain error"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err))
	}
}

func TestIs(t *testing.T) {
	err := Storage("write failed", errors.New("boom"))
	assert.True(t, Is(err, KindStorage))
	assert.False(t, Is(err, KindConfig))
	assert.False(t, Is(errors.New("unrelated"), KindStorage))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Persistence("save failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWrapPreservesChain(t *testing.T) {
	cause := errors.New("duplicate key")
	err := error(Conflict("username taken"))
	assert.Nil(t, errors.Unwrap(err))

	wrapped := Storage("insert failed", cause)
	var target *Error
	require.True(t, errors.As(error(wrapped), &target))
	assert.Equal(t, KindStorage, target.Kind)
}
