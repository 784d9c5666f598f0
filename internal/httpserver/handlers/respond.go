package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relicta-tech/notebase/internal/container"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/httpserver/dto"
	"github.com/relicta-tech/notebase/internal/query"
)

// maxBodyBytes bounds request bodies. Note content is the largest payload.
const maxBodyBytes = 4 << 20

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, message, code string) {
	respondJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondErr maps a classified error to a status code.
func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error(), rperrors.KindNotFound.String())
		return
	case errors.Is(err, query.ErrCycle):
		respondError(w, http.StatusConflict, "the tree contains a cycle", rperrors.KindIntegrity.String())
		return
	}

	kind := rperrors.GetKind(err)
	status := http.StatusInternalServerError
	switch kind {
	case rperrors.KindValidation:
		status = http.StatusBadRequest
	case rperrors.KindNotFound:
		status = http.StatusNotFound
	case rperrors.KindConflict, rperrors.KindState, rperrors.KindIntegrity:
		status = http.StatusConflict
	case rperrors.KindCanceled:
		status = http.StatusServiceUnavailable
	}
	respondError(w, status, rperrors.UserMessage(err), kind.String())
}

// app returns the container or writes 503.
func app(w http.ResponseWriter) (*container.Container, bool) {
	ctx := GetContext()
	if ctx == nil || ctx.App == nil {
		respondError(w, http.StatusServiceUnavailable, "server is not initialized", "")
		return nil, false
	}
	return ctx.App, true
}

// decode reads a JSON body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), rperrors.KindValidation.String())
		return false
	}
	return true
}

// pathID parses the {id} URL parameter.
func pathID(w http.ResponseWriter, r *http.Request) (eventsource.ID, bool) {
	id, err := eventsource.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing id", rperrors.KindValidation.String())
		return "", false
	}
	return id, true
}

// optionalID parses an id that may be empty.
func optionalID(raw string) eventsource.ID {
	id, err := eventsource.ParseID(raw)
	if err != nil {
		return ""
	}
	return id
}

// dispatch runs a use case through the command middleware.
func dispatch[In, Out any](r *http.Request, a *container.Container, name string,
	build func(*container.Container) func(context.Context, In) (Out, error), in In) (Out, error) {
	return container.Handle(a, name, build(a))(r.Context(), in)
}

// writable returns the container when commands are allowed, or writes 403
// or 503.
func writable(w http.ResponseWriter) (*container.Container, bool) {
	if ctx := GetContext(); ctx != nil && ctx.ReadOnly {
		respondError(w, http.StatusForbidden, "server is read-only", rperrors.KindState.String())
		return nil, false
	}
	return app(w)
}

// execute runs a use case and writes its output with status.
func execute[In, Out any](w http.ResponseWriter, r *http.Request, name string, status int,
	build func(*container.Container) func(context.Context, In) (Out, error), in In) {
	a, ok := writable(w)
	if !ok {
		return
	}
	out, err := dispatch(r, a, name, build, in)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, status, out)
}
