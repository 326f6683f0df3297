package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := fmt.Errorf("analyze entry 7: %w", Storage("persist", cause))

	assert.Equal(t, KindStorage, KindOf(err))
	assert.True(t, Retryable(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Contains(t, err.Error(), "persist: disk I/O error")
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("submit metric", "rating %d out of range", 11), http.StatusBadRequest},
		{NotFound("entry", "entry %d not found", 3), http.StatusNotFound},
		{Busy("chat", errors.New("generation in flight")), http.StatusTooManyRequests},
		{Unavailable("themeriver", errors.New("model down")), http.StatusServiceUnavailable},
		{BadOutput("spider", errors.New("no ratings")), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestValidationIsNotRetryable(t *testing.T) {
	assert.False(t, Retryable(Validation("op", "bad")))
	assert.False(t, Retryable(errors.New("plain")))
	assert.True(t, Is(Busy("chat", nil), KindBusy))
	assert.False(t, Is(nil, KindBusy))
}
