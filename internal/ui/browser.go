// Package ui provides terminal user interface components for notebase.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Node is one entry of a browsable tree.
type Node struct {
	ID   string
	Name string
	// Category nodes can be opened; anything else is a leaf.
	Category bool
	// Kind labels leaves, e.g. "note".
	Kind string
}

// TreeSource loads tree levels and node details for the browser.
type TreeSource interface {
	// Children returns the direct children of parent, or the top level when
	// parent is empty.
	Children(ctx context.Context, parent string) ([]Node, error)
	// Detail returns the text shown in the detail pane for node.
	Detail(ctx context.Context, node Node) (string, error)
}

type childrenMsg struct {
	parent string
	nodes  []Node
	err    error
}

type detailMsg struct {
	id   string
	text string
	err  error
}

// BrowserModel is the Bubble Tea model for browsing a category tree.
type BrowserModel struct {
	title  string
	source TreeSource
	ctx    context.Context

	trail    []Node // opened categories, outermost first
	nodes    []Node
	cursor   int
	reselect string
	loading  bool
	err      error

	viewport   viewport.Model
	ready      bool
	width      int
	height     int
	showDetail bool
	showHelp   bool
	detailFor  string

	keymap browserKeyMap
	styles browserStyles
}

type browserKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Open   key.Binding
	Back   key.Binding
	Detail key.Binding
	Reload key.Binding
	Help   key.Binding
	Quit   key.Binding
}

type browserStyles struct {
	title     lipgloss.Style
	crumb     lipgloss.Style
	category  lipgloss.Style
	leaf      lipgloss.Style
	selected  lipgloss.Style
	subtle    lipgloss.Style
	error     lipgloss.Style
	success   lipgloss.Style
	bold      lipgloss.Style
	border    lipgloss.Style
	statusBar lipgloss.Style
}

func defaultKeyMap() browserKeyMap {
	return browserKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("k/up", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("j/down", "move down"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter", "right", "l"),
			key.WithHelp("enter/l", "open category"),
		),
		Back: key.NewBinding(
			key.WithKeys("backspace", "left", "h"),
			key.WithHelp("h/backspace", "go up"),
		),
		Detail: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "toggle details"),
		),
		Reload: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func defaultStyles() browserStyles {
	return browserStyles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1),
		crumb:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		category: lipgloss.NewStyle().Bold(true),
		leaf:     lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		subtle:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		bold:     lipgloss.NewStyle().Bold(true),
		border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1),
		statusBar: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1),
	}
}

// NewBrowserModel creates a browser starting at the top level.
func NewBrowserModel(ctx context.Context, title string, source TreeSource) BrowserModel {
	return BrowserModel{
		title:   title,
		source:  source,
		ctx:     ctx,
		loading: true,
		keymap:  defaultKeyMap(),
		styles:  defaultStyles(),
	}
}

// Init implements tea.Model.
func (m BrowserModel) Init() tea.Cmd {
	return m.loadChildren("")
}

func (m BrowserModel) loadChildren(parent string) tea.Cmd {
	ctx, source := m.ctx, m.source
	return func() tea.Msg {
		nodes, err := source.Children(ctx, parent)
		return childrenMsg{parent: parent, nodes: nodes, err: err}
	}
}

func (m BrowserModel) loadDetail(node Node) tea.Cmd {
	ctx, source := m.ctx, m.source
	return func() tea.Msg {
		text, err := source.Detail(ctx, node)
		return detailMsg{id: node.ID, text: text, err: err}
	}
}

// current returns the id of the open category, empty at the top level.
func (m BrowserModel) current() string {
	if len(m.trail) == 0 {
		return ""
	}
	return m.trail[len(m.trail)-1].ID
}

// Selected returns the highlighted node.
func (m BrowserModel) Selected() (Node, bool) {
	if m.cursor < 0 || m.cursor >= len(m.nodes) {
		return Node{}, false
	}
	return m.nodes[m.cursor], true
}

// Update implements tea.Model.
func (m BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		detailHeight := max(m.height/2-4, 3)
		if !m.ready {
			m.viewport = viewport.New(max(m.width-4, 10), detailHeight)
			m.ready = true
		} else {
			m.viewport.Width = max(m.width-4, 10)
			m.viewport.Height = detailHeight
		}
		return m, nil

	case childrenMsg:
		// A late reply for a level the user already left.
		if msg.parent != m.current() {
			return m, nil
		}
		m.loading = false
		m.err = msg.err
		m.nodes = msg.nodes
		m.cursor = min(m.cursor, max(len(m.nodes)-1, 0))
		if m.reselect != "" {
			// Going up lands on the category just left.
			for i, n := range m.nodes {
				if n.ID == m.reselect {
					m.cursor = i
				}
			}
			m.reselect = ""
		}
		return m, m.refreshDetail()

	case detailMsg:
		if sel, ok := m.Selected(); !ok || sel.ID != msg.id {
			return m, nil
		}
		m.detailFor = msg.id
		if msg.err != nil {
			m.viewport.SetContent(m.styles.error.Render(msg.err.Error()))
		} else {
			m.viewport.SetContent(msg.text)
		}
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m BrowserModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keymap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, m.refreshDetail()

	case key.Matches(msg, m.keymap.Down):
		if m.cursor < len(m.nodes)-1 {
			m.cursor++
		}
		return m, m.refreshDetail()

	case key.Matches(msg, m.keymap.Open):
		sel, ok := m.Selected()
		if !ok || !sel.Category {
			return m, nil
		}
		m.trail = append(m.trail, sel)
		m.cursor = 0
		m.loading = true
		return m, m.loadChildren(sel.ID)

	case key.Matches(msg, m.keymap.Back):
		if len(m.trail) == 0 {
			return m, nil
		}
		left := m.trail[len(m.trail)-1]
		m.trail = m.trail[:len(m.trail)-1]
		m.loading = true
		m.cursor = 0
		m.nodes = nil
		m.reselect = left.ID
		return m, m.loadChildren(m.current())

	case key.Matches(msg, m.keymap.Detail):
		m.showDetail = !m.showDetail
		return m, m.refreshDetail()

	case key.Matches(msg, m.keymap.Reload):
		m.loading = true
		return m, m.loadChildren(m.current())
	}

	if m.showDetail && m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// refreshDetail loads the detail pane for the selection when it is visible.
func (m BrowserModel) refreshDetail() tea.Cmd {
	if !m.showDetail {
		return nil
	}
	sel, ok := m.Selected()
	if !ok || sel.ID == m.detailFor {
		return nil
	}
	return m.loadDetail(sel)
}

// View implements tea.Model.
func (m BrowserModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder

	b.WriteString(m.styles.title.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.renderTrail())
	b.WriteString("\n\n")

	b.WriteString(m.renderLevel())

	if m.showDetail {
		b.WriteString("\n")
		b.WriteString(m.styles.border.Render(m.viewport.View()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.showHelp {
		b.WriteString(m.renderHelp())
	} else {
		b.WriteString(m.renderStatus())
	}

	return b.String()
}

func (m BrowserModel) renderTrail() string {
	parts := make([]string, 0, len(m.trail)+1)
	parts = append(parts, "Top")
	for _, n := range m.trail {
		parts = append(parts, n.Name)
	}
	return m.styles.crumb.Render(strings.Join(parts, " › "))
}

func (m BrowserModel) renderLevel() string {
	switch {
	case m.err != nil:
		return m.styles.error.Render("✗ "+m.err.Error()) + "\n"
	case m.loading && len(m.nodes) == 0:
		return m.styles.subtle.Render("Loading...") + "\n"
	case len(m.nodes) == 0:
		return m.styles.subtle.Render("(empty)") + "\n"
	}

	var b strings.Builder
	for i, n := range m.nodes {
		label := n.Name
		style := m.styles.leaf
		if n.Category {
			label += "/"
			style = m.styles.category
		} else if n.Kind != "" {
			label += m.styles.subtle.Render("  " + n.Kind)
		}

		if i == m.cursor {
			b.WriteString(m.styles.selected.Render("▸ "))
			b.WriteString(m.styles.selected.Render(label))
		} else {
			b.WriteString("  ")
			b.WriteString(style.Render(label))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m BrowserModel) renderStatus() string {
	count := fmt.Sprintf("%d item(s)", len(m.nodes))
	if m.loading {
		count = "loading"
	}
	hints := m.styles.subtle.Render("[enter]open  [h]up  [tab]details  [r]eload  [?]help  [q]uit")
	return m.styles.statusBar.Render(count) + "  " + hints + "\n"
}

func (m BrowserModel) renderHelp() string {
	var b strings.Builder

	b.WriteString(m.styles.bold.Render("Keyboard Shortcuts"))
	b.WriteString("\n\n")

	for _, binding := range []key.Binding{
		m.keymap.Up, m.keymap.Down, m.keymap.Open, m.keymap.Back,
		m.keymap.Detail, m.keymap.Reload, m.keymap.Help, m.keymap.Quit,
	} {
		h := binding.Help()
		fmt.Fprintf(&b, "  %s  %s\n",
			m.styles.success.Render(fmt.Sprintf("%-12s", h.Key)),
			m.styles.subtle.Render(h.Desc))
	}

	b.WriteString("\n")
	b.WriteString(m.styles.subtle.Render("Press ? to close help"))
	b.WriteString("\n")

	return b.String()
}

// RunBrowser runs the tree browser until the user quits.
func RunBrowser(ctx context.Context, title string, source TreeSource) error {
	p := tea.NewProgram(NewBrowserModel(ctx, title, source), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
