package server

import (
	"net/http"

	apperrors "github.com/feedmeta/feedmeta/internal/errors"
)

// HandleError central handler for all errors
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

// handleDomainError maps engine and core sentinels onto envelopes first.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithDomainError(w, r, err)
}
