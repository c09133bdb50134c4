package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsClassifiedErrors(t *testing.T) {
	errStock := errors.New("insufficient stock")
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", ErrNotFound, http.StatusNotFound},
		{"rule", Classified(ErrRule, errStock), http.StatusUnprocessableEntity},
		{"conflict", Classified(ErrConflict, errors.New("save in progress")), http.StatusConflict},
		{"validation", Classified(ErrValidation, errors.New("bad date")), http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			assert.Equal(t, tc.status, rr.Code)
		})
	}

	wrapped := Classified(ErrRule, errStock)
	assert.ErrorIs(t, wrapped, errStock)
	assert.Equal(t, "insufficient stock", wrapped.Error())
}

func TestValidationProblemListsFields(t *testing.T) {
	type input struct {
		BranchID string `validate:"required"`
	}
	err := validator.New().Struct(input{})
	require.Error(t, err)

	rr := httptest.NewRecorder()
	ValidationProblem(rr, err)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "required", body.Fields["branchid"])
}
