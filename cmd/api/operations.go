package main

import (
	"net/http"
)

// @Summary		Operations control dashboard
// @Description	Unresolved production risk events, severity-ordered and enriched with entity names.
// @Tags			Operations
// @Produce		json
// @Success		200	{object}	report.OperationsReport
// @Failure		500	{object}	response.ErrorResponse
// @Router			/operations-control [get]
func (app *application) handleGetOperationsControl(w http.ResponseWriter, r *http.Request) {
	out, err := app.reports.OperationsControl(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to build operations report: "+err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, out); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}
