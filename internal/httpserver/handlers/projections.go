package handlers

import (
	"encoding/json"
	"net/http"

	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/httpserver/dto"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
)

// ProjectionsResponse reports read database health.
type ProjectionsResponse struct {
	Breaker     string                 `json:"breaker"`
	Projections []projection.Status    `json:"projections"`
	Rejections  []projection.Rejection `json:"rejections"`
}

// GetProjections returns projection positions, lag and rejected records.
func GetProjections(w http.ResponseWriter, r *http.Request) {
	a, ok := app(w)
	if !ok {
		return
	}
	const op = "handlers.GetProjections"
	statuses, err := a.Orchestrator().Status(r.Context())
	if err != nil {
		respondErr(w, rperrors.ProjectionWrap(err, op, "failed to read projection status"))
		return
	}
	rejections, err := a.Orchestrator().Rejections(r.Context())
	if err != nil {
		respondErr(w, rperrors.ProjectionWrap(err, op, "failed to read rejected records"))
		return
	}
	respondJSON(w, http.StatusOK, ProjectionsResponse{
		Breaker:     a.Sync().State(),
		Projections: statuses,
		Rejections:  rejections,
	})
}

// GetHistory returns the event stream of one aggregate.
func GetHistory(w http.ResponseWriter, r *http.Request) {
	a, ok := app(w)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	const op = "handlers.GetHistory"
	records, _, err := a.Store().Load(r.Context(), id)
	if err != nil {
		respondErr(w, rperrors.StorageWrap(err, op, "failed to load events"))
		return
	}
	if len(records) == 0 {
		respondError(w, http.StatusNotFound, "no events recorded for "+id.String(), rperrors.KindNotFound.String())
		return
	}

	entries := make([]dto.HistoryEntryDTO, 0, len(records))
	for _, rec := range records {
		var payload map[string]any
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			respondErr(w, rperrors.Wrap(err, rperrors.KindInternal, op, "failed to decode events"))
			return
		}
		entries = append(entries, dto.HistoryEntryDTO{
			Position:      rec.Position,
			Sequence:      rec.Sequence,
			AggregateType: rec.AggregateType,
			EventName:     rec.EventName,
			OccurredAt:    rec.OccurredAt,
			Payload:       payload,
		})
	}
	respondJSON(w, http.StatusOK, dto.ListResponse[dto.HistoryEntryDTO]{Data: entries, Total: len(entries)})
}
