package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apptodos "github.com/relicta-tech/notebase/internal/application/todos"
	"github.com/relicta-tech/notebase/internal/container"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/httpserver/dto"
	"github.com/relicta-tech/notebase/internal/query"
)

// ListTodos returns todos narrowed by the query string: category,
// uncategorized, status, tag, favorites, priority and q.
func ListTodos(w http.ResponseWriter, r *http.Request) {
	a, ok := app(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := query.Filter{
		CategoryID: optionalID(q.Get("category")),
		Status:     q.Get("status"),
		Tag:        q.Get("tag"),
		Priority:   q.Get("priority"),
		Search:     q.Get("q"),
	}
	filter.Uncategorized, _ = strconv.ParseBool(q.Get("uncategorized"))
	filter.FavoritesOnly, _ = strconv.ParseBool(q.Get("favorites"))

	switch filter.Status {
	case "", "active", "completed":
	default:
		respondError(w, http.StatusBadRequest, "status must be active or completed", rperrors.KindValidation.String())
		return
	}

	todos, err := a.Queries().Todos(r.Context(), filter)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.ListResponse[query.TodoView]{Data: todos, Total: len(todos)})
}

// GetTodo returns one todo.
func GetTodo(w http.ResponseWriter, r *http.Request) {
	a, ok := app(w)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	todo, err := a.Queries().Todo(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, todo)
}

func parseDueDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	due, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
	if err != nil {
		return nil, rperrors.ValidationWrap(err, "handlers.parseDueDate", "due_date must look like 2006-01-02")
	}
	return &due, nil
}

// CreateTodo creates a todo.
func CreateTodo(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTodoRequest
	if !decode(w, r, &req) {
		return
	}
	due, err := parseDueDate(req.DueDate)
	if err != nil {
		respondErr(w, err)
		return
	}
	execute(w, r, "todo add", http.StatusCreated,
		func(a *container.Container) func(context.Context, apptodos.CreateTodoInput) (*apptodos.TodoOutput, error) {
			return apptodos.NewCreateTodoUseCase(a.Todos()).Execute
		}, apptodos.CreateTodoInput{
			CategoryID: optionalID(req.CategoryID),
			Text:       req.Text,
			Priority:   req.Priority,
			DueDate:    due,
			Tags:       req.Tags,
			Favorite:   req.Favorite,
		})
}

// UpdateTodo applies every field present in the body, one command each.
// Commands that already ran stay committed if a later one fails.
func UpdateTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.UpdateTodoRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Text == nil && req.Priority == nil && req.DueDate == nil && req.Favorite == nil {
		respondError(w, http.StatusBadRequest, "nothing to update", rperrors.KindValidation.String())
		return
	}
	a, ok := writable(w)
	if !ok {
		return
	}

	var (
		out *apptodos.TodoOutput
		err error
	)
	if req.Text != nil {
		out, err = dispatch(r, a, "todo edit",
			func(a *container.Container) func(context.Context, apptodos.UpdateTodoTextInput) (*apptodos.TodoOutput, error) {
				return apptodos.NewUpdateTodoTextUseCase(a.Todos()).Execute
			}, apptodos.UpdateTodoTextInput{ID: id, Text: *req.Text})
		if err != nil {
			respondErr(w, err)
			return
		}
	}
	if req.Priority != nil {
		out, err = dispatch(r, a, "todo priority",
			func(a *container.Container) func(context.Context, apptodos.SetPriorityInput) (*apptodos.TodoOutput, error) {
				return apptodos.NewSetPriorityUseCase(a.Todos()).Execute
			}, apptodos.SetPriorityInput{ID: id, Priority: *req.Priority})
		if err != nil {
			respondErr(w, err)
			return
		}
	}
	if req.DueDate != nil {
		due, err := parseDueDate(*req.DueDate)
		if err != nil {
			respondErr(w, err)
			return
		}
		out, err = dispatch(r, a, "todo due",
			func(a *container.Container) func(context.Context, apptodos.SetDueDateInput) (*apptodos.TodoOutput, error) {
				return apptodos.NewSetDueDateUseCase(a.Todos()).Execute
			}, apptodos.SetDueDateInput{ID: id, DueDate: due})
		if err != nil {
			respondErr(w, err)
			return
		}
	}
	if req.Favorite != nil {
		out, err = dispatch(r, a, "todo favorite",
			func(a *container.Container) func(context.Context, apptodos.ToggleFavoriteInput) (*apptodos.TodoOutput, error) {
				return apptodos.NewToggleFavoriteUseCase(a.Todos()).Execute
			}, apptodos.ToggleFavoriteInput{ID: id, Favorite: req.Favorite})
		if err != nil {
			respondErr(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// ToggleTodo checks a todo off or reopens it.
func ToggleTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	execute(w, r, "todo done", http.StatusOK,
		func(a *container.Container) func(context.Context, apptodos.ToggleTodoCompletionInput) (*apptodos.TodoOutput, error) {
			return apptodos.NewToggleTodoCompletionUseCase(a.Todos()).Execute
		}, apptodos.ToggleTodoCompletionInput{ID: id})
}

// AddTodoTag attaches a tag.
func AddTodoTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.TagRequest
	if !decode(w, r, &req) {
		return
	}
	execute(w, r, "todo tag", http.StatusOK,
		func(a *container.Container) func(context.Context, apptodos.TagInput) (*apptodos.TodoOutput, error) {
			return apptodos.NewAddTagUseCase(a.Todos()).Execute
		}, apptodos.TagInput{ID: id, Tag: req.Tag})
}

// RemoveTodoTag detaches the {tag} path parameter.
func RemoveTodoTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	execute(w, r, "todo untag", http.StatusOK,
		func(a *container.Container) func(context.Context, apptodos.TagInput) (*apptodos.TodoOutput, error) {
			return apptodos.NewRemoveTagUseCase(a.Todos()).Execute
		}, apptodos.TagInput{ID: id, Tag: chi.URLParam(r, "tag")})
}

// MoveTodo files a todo under another category, or none.
func MoveTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.MoveRequest
	if !decode(w, r, &req) {
		return
	}
	execute(w, r, "todo move", http.StatusOK,
		func(a *container.Container) func(context.Context, apptodos.MoveTodoInput) (*apptodos.TodoOutput, error) {
			return apptodos.NewMoveTodoUseCase(a.Todos()).Execute
		}, apptodos.MoveTodoInput{ID: id, CategoryID: optionalID(req.ParentID)})
}

// DeleteTodo deletes a todo.
func DeleteTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	execute(w, r, "todo delete", http.StatusOK,
		func(a *container.Container) func(context.Context, apptodos.DeleteTodoInput) (*apptodos.TodoOutput, error) {
			return apptodos.NewDeleteTodoUseCase(a.Todos()).Execute
		}, apptodos.DeleteTodoInput{ID: id})
}
