package todos

import (
	"errors"
	"strings"
	"testing"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

func TestNewCategory(t *testing.T) {
	c, err := NewCategory("C1", "", " Errands ", t0)
	if err != nil {
		t.Fatalf("NewCategory() error = %v", err)
	}
	if c.Name() != "Errands" || !c.ParentID().IsZero() {
		t.Errorf("category = %q under %q", c.Name(), c.ParentID())
	}

	_, err = NewCategory("C1", "C1", "Loop", t0)
	wantRule(t, err, ErrSelfParent, "Category cannot be its own parent")

	_, err = NewCategory("C1", "", strings.Repeat("n", MaxCategoryNameLength+1), t0)
	wantRule(t, err, ErrInvalidName, "Category name cannot exceed 255 characters")

	_, err = NewCategory("C1", "", "", t0)
	wantRule(t, err, ErrInvalidName, "Category name cannot be empty")

	if _, err := NewCategory("", "", "x", t0); !errors.Is(err, eventsource.ErrEmptyID) {
		t.Errorf("NewCategory(empty id) error = %v", err)
	}
}

func TestCategory_RenameMoveDelete(t *testing.T) {
	c, err := NewCategory("C1", "", "Errands", t0)
	if err != nil {
		t.Fatal(err)
	}
	c.MarkCommitted()

	wantRule(t, c.Rename("Errands", t0), ErrUnchanged, "Category is already named 'Errands'")
	if err := c.Rename("Chores", t0); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	wantRule(t, c.MoveTo("C1", t0), ErrSelfParent, "Category cannot be its own parent")
	wantRule(t, c.MoveTo("", t0), ErrUnchanged, "Category is already there")
	if err := c.MoveTo("C0", t0); err != nil {
		t.Fatalf("MoveTo() error = %v", err)
	}
	if c.ParentID() != "C0" {
		t.Errorf("ParentID() = %q, want C0", c.ParentID())
	}

	if err := c.Delete(t0); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	wantRule(t, c.Rename("Again", t0), ErrDeleted, "Category has been deleted")
	wantRule(t, c.Delete(t0), ErrDeleted, "Category has been deleted")

	if got := len(c.PendingEvents()); got != 3 {
		t.Errorf("PendingEvents() = %d, want 3", got)
	}
	c.MarkCommitted()
	if c.Version() != 4 {
		t.Errorf("Version() = %d, want 4", c.Version())
	}
}
