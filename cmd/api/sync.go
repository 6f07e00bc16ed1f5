package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/hexametals/finsync/internal/response"
	"github.com/hexametals/finsync/internal/store"
)

type GetSyncHistoryResponse = response.APIResponse[[]store.SyncRun]

// @Summary		Get sync history
// @Description	Latest reconciliation and derivation runs, newest first.
// @Tags			Sync
// @Produce		json
// @Param			limit	query		int	false	"Limit the number of results"	default(20)
// @Success		200		{object}	GetSyncHistoryResponse
// @Failure		500		{object}	response.ErrorResponse
// @Router			/sync/history [get]
func (app *application) handleGetSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit := atoiOrDefault(r.URL.Query().Get("limit"), 20)

	data, err := app.store.SyncLog.Latest(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to get sync history: "+err.Error())
		return
	}

	resp := &GetSyncHistoryResponse{
		Success: true,
		Data:    data,
		Message: "Successfully retrieved latest sync runs",
	}

	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Trigger a full sync
// @Description	Starts a full reconciliation plus journal re-derivation in the background.
// @Tags			Sync
// @Produce		json
// @Success		202	{object}	response.APIResponse[string]
// @Failure		409	{object}	response.ErrorResponse	"A sync run is already in progress"
// @Router			/sync/run [post]
func (app *application) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	// The lock is taken here, not in the goroutine, so a second trigger
	// gets its conflict answer immediately.
	release, err := app.store.Locks.AcquireSyncLock(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrSyncAlreadyRunning) {
			writeJSONError(w, http.StatusConflict, "a sync run is already in progress")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to acquire sync lock: "+err.Error())
		return
	}

	go func() {
		defer release()
		ctx := context.Background()
		if err := app.reconciler.RunLocked(ctx, "api"); err != nil {
			app.log.WithError(err).Error("triggered sync failed")
			return
		}
		if _, err := app.deriver.Regenerate(ctx, "api"); err != nil {
			app.log.WithError(err).Error("journal derivation failed")
		}
	}()

	resp := &response.APIResponse[string]{
		Success: true,
		Message: "Sync started",
	}
	if err := writeJSON(w, http.StatusAccepted, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}
