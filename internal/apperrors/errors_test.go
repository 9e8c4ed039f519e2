package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := map[string]struct {
		err    error
		kind   Kind
		status int
	}{
		"validation": {err: Validation("missing %s", "id"), kind: KindValidation, status: http.StatusBadRequest},
		"conflict":   {err: Conflict("exists"), kind: KindConflict, status: http.StatusConflict},
		"not found":  {err: NotFound("gone"), kind: KindNotFound, status: http.StatusNotFound},
		"denied":     {err: AuthDenied("nope"), kind: KindAuthDenied, status: http.StatusForbidden},
		"upstream":   {err: Upstream(errors.New("boom"), "get item"), kind: KindUpstream, status: http.StatusInternalServerError},
		"wrapped":    {err: fmt.Errorf("get movie: %w", NotFound("movie not found")), kind: KindNotFound, status: http.StatusNotFound},
		"plain":      {err: errors.New("plain"), kind: KindUpstream, status: http.StatusInternalServerError},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.kind, KindOf(tc.err))
			assert.Equal(t, tc.status, KindOf(tc.err).StatusCode())
			assert.True(t, Is(tc.err, tc.kind))
		})
	}
}

func TestMessageHidesUpstreamCause(t *testing.T) {
	cause := errors.New("AccessDeniedException: secret arn")
	err := Upstream(cause, "get item")

	assert.Equal(t, "get item", Message(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal error", Message(errors.New("raw")))
}

func TestIsNil(t *testing.T) {
	assert.False(t, Is(nil, KindUpstream))
}
