package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/gopathways/internal/errors"
)

func TestCustomErrorResponder_ReceivesHandlerErrors(t *testing.T) {
	t.Cleanup(ResetHTTPErrorResponder)
	h, _ := newAPI(t)

	var got error
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	})

	rec := serve(h, "/programs?limit=0")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	var appErr *apperrors.AppError
	require.True(t, errors.As(got, &appErr))
	assert.Equal(t, apperrors.CodeBadRequest, appErr.Code)
}

func TestDefaultErrorResponder_Restored(t *testing.T) {
	h, _ := newAPI(t)

	for name, restore := range map[string]func(){
		"nil":   func() { SetHTTPErrorResponder(nil) },
		"reset": ResetHTTPErrorResponder,
	} {
		t.Run(name, func(t *testing.T) {
			SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
				w.WriteHeader(http.StatusTeapot)
			})
			restore()

			rec := serve(h, "/programs/missing")

			assert.Equal(t, http.StatusNotFound, rec.Code)
			var body apperrors.HTTPErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, apperrors.CodeNotFound, body.Error.Code)
			assert.Contains(t, body.Error.Message, "missing")
		})
	}
}
