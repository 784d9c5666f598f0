package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	appnotes "github.com/relicta-tech/notebase/internal/application/notes"
	apptodos "github.com/relicta-tech/notebase/internal/application/todos"
	"github.com/relicta-tech/notebase/internal/container"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/httpserver/dto"
	"github.com/relicta-tech/notebase/internal/query"
)

// treeKind parses the {kind} URL parameter ("notes" or "todos").
func treeKind(w http.ResponseWriter, r *http.Request) (query.TreeKind, bool) {
	kind := query.TreeKind(chi.URLParam(r, "kind"))
	if _, err := kind.Table(); err != nil {
		respondError(w, http.StatusNotFound, "unknown tree "+string(kind), rperrors.KindNotFound.String())
		return "", false
	}
	return kind, true
}

// GetTree returns every node of a tree, or the subtree under ?from=.
func GetTree(w http.ResponseWriter, r *http.Request) {
	a, ok := app(w)
	if !ok {
		return
	}
	kind, ok := treeKind(w, r)
	if !ok {
		return
	}

	var (
		nodes []query.TreeNode
		err   error
	)
	if from := optionalID(r.URL.Query().Get("from")); !from.IsZero() {
		nodes, err = a.Queries().Subtree(r.Context(), kind, from)
	} else {
		nodes, err = a.Queries().Tree(r.Context(), kind)
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.ListResponse[query.TreeNode]{Data: nodes, Total: len(nodes)})
}

// GetChildren returns the direct children of ?parent=, or the top level.
func GetChildren(w http.ResponseWriter, r *http.Request) {
	a, ok := app(w)
	if !ok {
		return
	}
	kind, ok := treeKind(w, r)
	if !ok {
		return
	}
	nodes, err := a.Queries().Children(r.Context(), kind, optionalID(r.URL.Query().Get("parent")))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.ListResponse[query.TreeNode]{Data: nodes, Total: len(nodes)})
}

// GetNode returns one node.
func GetNode(w http.ResponseWriter, r *http.Request) {
	a, ok := app(w)
	if !ok {
		return
	}
	kind, ok := treeKind(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	node, err := a.Queries().Node(r.Context(), kind, id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, node)
}

// GetBreadcrumb returns the path from the top level down to a node.
func GetBreadcrumb(w http.ResponseWriter, r *http.Request) {
	a, ok := app(w)
	if !ok {
		return
	}
	kind, ok := treeKind(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	nodes, err := a.Queries().Breadcrumb(r.Context(), kind, id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.ListResponse[query.TreeNode]{Data: nodes, Total: len(nodes)})
}

// CreateCategory creates a notebook or todo category under {kind}.
func CreateCategory(w http.ResponseWriter, r *http.Request) {
	kind, ok := treeKind(w, r)
	if !ok {
		return
	}
	var req dto.CreateCategoryRequest
	if !decode(w, r, &req) {
		return
	}

	if kind == query.TodoCategoryTree {
		execute(w, r, "todo category create", http.StatusCreated,
			func(a *container.Container) func(context.Context, apptodos.CreateCategoryInput) (*apptodos.CategoryOutput, error) {
				return apptodos.NewCreateCategoryUseCase(a.Todos()).Execute
			}, apptodos.CreateCategoryInput{ParentID: optionalID(req.ParentID), Name: req.Name})
		return
	}
	execute(w, r, "category create", http.StatusCreated,
		func(a *container.Container) func(context.Context, appnotes.CreateCategoryInput) (*appnotes.CategoryOutput, error) {
			return appnotes.NewCreateCategoryUseCase(a.Notes()).Execute
		}, appnotes.CreateCategoryInput{ParentID: optionalID(req.ParentID), Name: req.Name})
}

// RenameCategory renames a category.
func RenameCategory(w http.ResponseWriter, r *http.Request) {
	kind, ok := treeKind(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.RenameRequest
	if !decode(w, r, &req) {
		return
	}

	if kind == query.TodoCategoryTree {
		execute(w, r, "todo category rename", http.StatusOK,
			func(a *container.Container) func(context.Context, apptodos.RenameCategoryInput) (*apptodos.CategoryOutput, error) {
				return apptodos.NewRenameCategoryUseCase(a.Todos()).Execute
			}, apptodos.RenameCategoryInput{ID: id, Name: req.Name})
		return
	}
	execute(w, r, "category rename", http.StatusOK,
		func(a *container.Container) func(context.Context, appnotes.RenameCategoryInput) (*appnotes.CategoryOutput, error) {
			return appnotes.NewRenameCategoryUseCase(a.Notes()).Execute
		}, appnotes.RenameCategoryInput{ID: id, Name: req.Name})
}

// MoveCategory re-parents a category.
func MoveCategory(w http.ResponseWriter, r *http.Request) {
	kind, ok := treeKind(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.MoveRequest
	if !decode(w, r, &req) {
		return
	}

	if kind == query.TodoCategoryTree {
		execute(w, r, "todo category move", http.StatusOK,
			func(a *container.Container) func(context.Context, apptodos.MoveCategoryInput) (*apptodos.CategoryOutput, error) {
				return apptodos.NewMoveCategoryUseCase(a.Todos()).Execute
			}, apptodos.MoveCategoryInput{ID: id, ParentID: optionalID(req.ParentID)})
		return
	}
	execute(w, r, "category move", http.StatusOK,
		func(a *container.Container) func(context.Context, appnotes.MoveCategoryInput) (*appnotes.CategoryOutput, error) {
			return appnotes.NewMoveCategoryUseCase(a.Notes()).Execute
		}, appnotes.MoveCategoryInput{ID: id, ParentID: optionalID(req.ParentID)})
}

// DeleteCategory deletes a category.
func DeleteCategory(w http.ResponseWriter, r *http.Request) {
	kind, ok := treeKind(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if kind == query.TodoCategoryTree {
		execute(w, r, "todo category delete", http.StatusOK,
			func(a *container.Container) func(context.Context, apptodos.DeleteCategoryInput) (*apptodos.CategoryOutput, error) {
				return apptodos.NewDeleteCategoryUseCase(a.Todos()).Execute
			}, apptodos.DeleteCategoryInput{ID: id})
		return
	}
	execute(w, r, "category delete", http.StatusOK,
		func(a *container.Container) func(context.Context, appnotes.DeleteCategoryInput) (*appnotes.CategoryOutput, error) {
			return appnotes.NewDeleteCategoryUseCase(a.Notes()).Execute
		}, appnotes.DeleteCategoryInput{ID: id})
}
