package handlers

import (
	"context"
	"net/http"

	appnotes "github.com/relicta-tech/notebase/internal/application/notes"
	"github.com/relicta-tech/notebase/internal/container"
	"github.com/relicta-tech/notebase/internal/httpserver/dto"
	"github.com/relicta-tech/notebase/internal/query"
)

// ListNotes returns the notes filed under ?category=, or the top-level notes.
func ListNotes(w http.ResponseWriter, r *http.Request) {
	a, ok := app(w)
	if !ok {
		return
	}
	notes, err := a.Queries().Notes(r.Context(), optionalID(r.URL.Query().Get("category")))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.ListResponse[query.NoteView]{Data: notes, Total: len(notes)})
}

// GetNote returns one note with its content.
func GetNote(w http.ResponseWriter, r *http.Request) {
	a, ok := app(w)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	note, err := a.Queries().Note(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, note)
}

// CreateNote creates a note.
func CreateNote(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateNoteRequest
	if !decode(w, r, &req) {
		return
	}
	execute(w, r, "note create", http.StatusCreated,
		func(a *container.Container) func(context.Context, appnotes.CreateNoteInput) (*appnotes.NoteOutput, error) {
			return appnotes.NewCreateNoteUseCase(a.Notes()).Execute
		}, appnotes.CreateNoteInput{CategoryID: optionalID(req.CategoryID), Title: req.Title, Content: req.Content})
}

// RenameNote changes a note's title.
func RenameNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.RenameRequest
	if !decode(w, r, &req) {
		return
	}
	execute(w, r, "note rename", http.StatusOK,
		func(a *container.Container) func(context.Context, appnotes.RenameNoteInput) (*appnotes.NoteOutput, error) {
			return appnotes.NewRenameNoteUseCase(a.Notes()).Execute
		}, appnotes.RenameNoteInput{ID: id, Title: req.Name})
}

// MoveNote files a note under another category.
func MoveNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.MoveRequest
	if !decode(w, r, &req) {
		return
	}
	execute(w, r, "note move", http.StatusOK,
		func(a *container.Container) func(context.Context, appnotes.MoveNoteInput) (*appnotes.NoteOutput, error) {
			return appnotes.NewMoveNoteUseCase(a.Notes()).Execute
		}, appnotes.MoveNoteInput{ID: id, CategoryID: optionalID(req.ParentID)})
}

// UpdateNoteContent replaces a note's content.
func UpdateNoteContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.NoteContentRequest
	if !decode(w, r, &req) {
		return
	}
	execute(w, r, "note edit", http.StatusOK,
		func(a *container.Container) func(context.Context, appnotes.UpdateNoteContentInput) (*appnotes.NoteOutput, error) {
			return appnotes.NewUpdateNoteContentUseCase(a.Notes()).Execute
		}, appnotes.UpdateNoteContentInput{ID: id, Content: req.Content})
}

// PinNote pins or unpins a note.
func PinNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.PinRequest
	if !decode(w, r, &req) {
		return
	}
	execute(w, r, "note pin", http.StatusOK,
		func(a *container.Container) func(context.Context, appnotes.PinNoteInput) (*appnotes.NoteOutput, error) {
			return appnotes.NewPinNoteUseCase(a.Notes()).Execute
		}, appnotes.PinNoteInput{ID: id, Pinned: req.Pinned})
}

// DeleteNote deletes a note.
func DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	execute(w, r, "note delete", http.StatusOK,
		func(a *container.Container) func(context.Context, appnotes.DeleteNoteInput) (*appnotes.NoteOutput, error) {
			return appnotes.NewDeleteNoteUseCase(a.Notes()).Execute
		}, appnotes.DeleteNoteInput{ID: id})
}
