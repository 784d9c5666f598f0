package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
	"github.com/relicta-tech/notebase/internal/query"
)

// TreeReader is the read side consulted before a category is created or moved.
type TreeReader interface {
	Node(ctx context.Context, kind query.TreeKind, id eventsource.ID) (query.TreeNode, error)
	Children(ctx context.Context, kind query.TreeKind, parent eventsource.ID) ([]query.TreeNode, error)
	SiblingNamed(ctx context.Context, kind query.TreeKind, parent eventsource.ID, name string, except eventsource.ID) (query.TreeNode, bool, error)
	IsDescendant(ctx context.Context, kind query.TreeKind, ancestor, candidate eventsource.ID) (bool, error)
}

// Placement checks cross-aggregate rules for categories in one tree.
type Placement struct {
	Reader TreeReader
	Kind   query.TreeKind
}

// UniqueName fails when parent already holds another category called name.
func (p Placement) UniqueName(ctx context.Context, op string, parent eventsource.ID, name string, self eventsource.ID) error {
	if p.Reader == nil {
		return nil
	}
	_, found, err := p.Reader.SiblingNamed(ctx, p.Kind, parent, name, self)
	if err != nil {
		return rperrors.Wrap(err, rperrors.KindProjection, op, "failed to read the category tree")
	}
	if found {
		return rperrors.Validation(op, fmt.Sprintf("A category named '%s' already exists here", strings.TrimSpace(name)))
	}
	return nil
}

// Parent returns the parent id currently projected for id. The projection
// promotes the children of a deleted category to the root, so it can differ
// from the parent recorded on the aggregate; recorded is returned when id is
// not projected yet.
func (p Placement) Parent(ctx context.Context, op string, id, recorded eventsource.ID) (eventsource.ID, error) {
	if p.Reader == nil {
		return recorded, nil
	}
	node, err := p.Reader.Node(ctx, p.Kind, id)
	if errors.Is(err, query.ErrNotFound) {
		return recorded, nil
	}
	if err != nil {
		return "", rperrors.Wrap(err, rperrors.KindProjection, op, "failed to read the category tree")
	}
	return node.ParentID, nil
}

// PromotableChildren fails when deleting id would promote a child category
// to the root next to a root category of the same name.
func (p Placement) PromotableChildren(ctx context.Context, op string, id eventsource.ID) error {
	if p.Reader == nil {
		return nil
	}
	children, err := p.Reader.Children(ctx, p.Kind, id)
	if err != nil {
		return rperrors.Wrap(err, rperrors.KindProjection, op, "failed to read the category tree")
	}
	for _, child := range children {
		if child.NodeType != projection.NodeCategory {
			continue
		}
		_, clash, err := p.Reader.SiblingNamed(ctx, p.Kind, "", child.Name, child.ID)
		if err != nil {
			return rperrors.Wrap(err, rperrors.KindProjection, op, "failed to read the category tree")
		}
		if clash {
			return rperrors.Validation(op, fmt.Sprintf("Deleting this category would move '%s' next to a root category of the same name", child.Name))
		}
	}
	return nil
}

// NotIntoDescendant fails when parent lies inside the subtree of id.
func (p Placement) NotIntoDescendant(ctx context.Context, op string, id, parent eventsource.ID) error {
	if p.Reader == nil || parent.IsZero() {
		return nil
	}
	inside, err := p.Reader.IsDescendant(ctx, p.Kind, id, parent)
	if err != nil {
		return rperrors.Wrap(err, rperrors.KindProjection, op, "failed to read the category tree")
	}
	if inside {
		return rperrors.Validation(op, "Cannot move a category into its own descendant")
	}
	return nil
}

// Exists loads id from repo and fails with a validation error when it is
// missing or deleted. An empty id always passes.
func Exists[T interface {
	eventsource.Aggregate
	IsDeleted() bool
}](ctx context.Context, repo Repository[T], op, label string, id eventsource.ID) error {
	if id.IsZero() {
		return nil
	}
	agg, err := repo.Load(ctx, id)
	if err != nil && !eventsource.IsNotFound(err) {
		return classifyLoad(err, op, repo.AggregateType(), id)
	}
	if err != nil || agg.IsDeleted() {
		return rperrors.Validation(op, fmt.Sprintf("%s '%s' does not exist", label, id)).WithDetail("id", id.String())
	}
	return nil
}
