package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeSource struct {
	levels map[string][]Node
	detail map[string]string
}

func (f fakeSource) Children(_ context.Context, parent string) ([]Node, error) {
	nodes, ok := f.levels[parent]
	if !ok {
		return nil, errors.New("no such category")
	}
	return nodes, nil
}

func (f fakeSource) Detail(_ context.Context, node Node) (string, error) {
	return f.detail[node.ID], nil
}

func testSource() fakeSource {
	return fakeSource{
		levels: map[string][]Node{
			"":     {{ID: "work", Name: "Work", Category: true}, {ID: "inbox", Name: "Inbox", Kind: "note"}},
			"work": {{ID: "plan", Name: "Plan", Kind: "note"}},
		},
		detail: map[string]string{"plan": "ship v2", "work": "1 note"},
	}
}

// drive feeds msg to the model and runs the returned command chain
// synchronously, the way the Bubble Tea runtime would.
func drive(t *testing.T, m BrowserModel, msg tea.Msg) BrowserModel {
	t.Helper()
	for msg != nil {
		updated, cmd := m.Update(msg)
		m = updated.(BrowserModel)
		if cmd == nil {
			return m
		}
		msg = cmd()
		if _, quit := msg.(tea.QuitMsg); quit {
			return m
		}
	}
	return m
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestBrowser(t *testing.T) BrowserModel {
	t.Helper()
	m := NewBrowserModel(context.Background(), "Notebook", testSource())
	m = drive(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})
	return drive(t, m, m.Init()())
}

func TestBrowser_ViewNotReady(t *testing.T) {
	m := NewBrowserModel(context.Background(), "Notebook", testSource())
	if view := m.View(); view != "Initializing..." {
		t.Errorf("View = %q, want %q", view, "Initializing...")
	}
}

func TestBrowser_LoadsTopLevel(t *testing.T) {
	m := newTestBrowser(t)

	view := m.View()
	if !strings.Contains(view, "Work/") || !strings.Contains(view, "Inbox") {
		t.Errorf("view missing top level:\n%s", view)
	}
	if sel, _ := m.Selected(); sel.ID != "work" {
		t.Errorf("Selected = %q, want work", sel.ID)
	}
}

func TestBrowser_OpenAndBack(t *testing.T) {
	m := newTestBrowser(t)

	m = drive(t, m, keyMsg("enter"))
	if len(m.trail) != 1 || m.trail[0].ID != "work" {
		t.Fatalf("trail = %+v", m.trail)
	}
	if !strings.Contains(m.View(), "Top › Work") {
		t.Errorf("breadcrumb missing:\n%s", m.View())
	}
	if sel, _ := m.Selected(); sel.ID != "plan" {
		t.Errorf("Selected = %q, want plan", sel.ID)
	}

	// Leaves do not open.
	m = drive(t, m, keyMsg("enter"))
	if len(m.trail) != 1 {
		t.Errorf("opening a leaf changed the trail: %+v", m.trail)
	}

	m = drive(t, m, keyMsg("backspace"))
	if len(m.trail) != 0 {
		t.Fatalf("trail = %+v after going up", m.trail)
	}
	if sel, _ := m.Selected(); sel.ID != "work" {
		t.Errorf("going up should reselect the category left, got %q", sel.ID)
	}
}

func TestBrowser_CursorBounds(t *testing.T) {
	m := newTestBrowser(t)

	m = drive(t, m, keyMsg("k"))
	if m.cursor != 0 {
		t.Errorf("cursor = %d after moving above the top", m.cursor)
	}
	m = drive(t, m, keyMsg("j"))
	m = drive(t, m, keyMsg("j"))
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
}

func TestBrowser_DetailPane(t *testing.T) {
	m := newTestBrowser(t)
	m = drive(t, m, keyMsg("enter"))

	m = drive(t, m, keyMsg("tab"))
	if !m.showDetail {
		t.Fatal("tab should show details")
	}
	if !strings.Contains(m.View(), "ship v2") {
		t.Errorf("detail pane missing content:\n%s", m.View())
	}
}

func TestBrowser_StaleChildrenIgnored(t *testing.T) {
	m := newTestBrowser(t)

	m = drive(t, m, childrenMsg{parent: "elsewhere", nodes: []Node{{ID: "x", Name: "X"}}})
	if sel, _ := m.Selected(); sel.ID != "work" {
		t.Errorf("stale reply replaced the level: %q", sel.ID)
	}
}

func TestBrowser_ErrorAndQuit(t *testing.T) {
	m := newTestBrowser(t)
	m = drive(t, m, childrenMsg{parent: "", err: errors.New("read database is locked")})
	if !strings.Contains(m.View(), "read database is locked") {
		t.Errorf("error not shown:\n%s", m.View())
	}

	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestBrowser_Help(t *testing.T) {
	m := newTestBrowser(t)
	m = drive(t, m, keyMsg("?"))
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Errorf("help not shown")
	}
}
