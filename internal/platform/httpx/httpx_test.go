package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("item: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("dup: %w", ErrConflict), http.StatusConflict},
		{fmt.Errorf("bad: %w", ErrValidation), http.StatusBadRequest},
		{ErrUnprocessable, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}

	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("secret dsn"))
	require.NotContains(t, rec.Body.String(), "secret")
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	decode := func(body string) (payload, error) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := DecodeJSON(httptest.NewRecorder(), req, &p)
		return p, err
	}

	p, err := decode(`{"name":"bolt"}`)
	require.NoError(t, err)
	require.Equal(t, "bolt", p.Name)

	for _, body := range []string{``, `{"name":"bolt","extra":1}`, `{"name":"a"}{"name":"b"}`, `{`} {
		_, err := decode(body)
		require.ErrorIs(t, err, ErrValidation, body)
	}
}

func TestValidationFailedListsFields(t *testing.T) {
	type line struct {
		Quantity int `validate:"gt=0"`
	}
	err := validator.New().Struct(line{})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	ValidationFailed(rec, err)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, map[string]any{"line.Quantity": "gt=0"}, body.Violations)
}
