package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	appnotes "github.com/relicta-tech/notebase/internal/application/notes"
	apptodos "github.com/relicta-tech/notebase/internal/application/todos"
	"github.com/relicta-tech/notebase/internal/container"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
	"github.com/relicta-tech/notebase/internal/query"
)

var kindProperty = Property{
	Type:        "string",
	Description: "Which tree: notes (notebook categories and notes) or todos (todo categories)",
	Enum:        []string{string(query.NoteTree), string(query.TodoCategoryTree)},
	Default:     string(query.NoteTree),
}

// registerTools registers all tool handlers.
func (s *Server) registerTools() {
	s.addTool(Tool{
		Name:        "notebase.tree",
		Description: "List a category tree, or the subtree under one node",
		InputSchema: InputSchema{Properties: map[string]Property{
			"kind": kindProperty,
			"from": {Type: "string", Description: "Only return this node and its descendants"},
		}},
	}, false, s.toolTree)

	s.addTool(Tool{
		Name:        "notebase.tree.check",
		Description: "Report self-references, orphans and cycles in a category tree",
		InputSchema: InputSchema{Properties: map[string]Property{"kind": kindProperty}},
	}, false, s.toolTreeCheck)

	s.addTool(Tool{
		Name:        "notebase.notes.list",
		Description: "List the notes in one notebook category, pinned first",
		InputSchema: InputSchema{Properties: map[string]Property{
			"category_id": {Type: "string", Description: "Category to list; omit for uncategorized notes"},
		}},
	}, false, s.toolNotesList)

	s.addTool(Tool{
		Name:        "notebase.note.get",
		Description: "Read one note including its content",
		InputSchema: InputSchema{
			Properties: map[string]Property{"id": {Type: "string", Description: "Note id"}},
			Required:   []string{"id"},
		},
	}, false, s.toolNoteGet)

	s.addTool(Tool{
		Name:        "notebase.todos.list",
		Description: "List todos, optionally filtered",
		InputSchema: InputSchema{Properties: map[string]Property{
			"category_id":   {Type: "string", Description: "Only todos in this category"},
			"uncategorized": {Type: "boolean", Description: "Only todos without a category"},
			"status":        {Type: "string", Enum: []string{"active", "completed"}},
			"tag":           {Type: "string"},
			"priority":      {Type: "string", Enum: []string{"none", "low", "medium", "high", "urgent"}},
			"favorites":     {Type: "boolean", Description: "Only favorites"},
			"search":        {Type: "string", Description: "Case-insensitive substring of the text"},
		}},
	}, false, s.toolTodosList)

	s.addTool(Tool{
		Name:        "notebase.history",
		Description: "List the recorded events of one category, note or todo",
		InputSchema: InputSchema{
			Properties: map[string]Property{"id": {Type: "string"}},
			Required:   []string{"id"},
		},
	}, false, s.toolHistory)

	s.addTool(Tool{
		Name:        "notebase.category.create",
		Description: "Create a category; names are unique among siblings",
		InputSchema: InputSchema{
			Properties: map[string]Property{
				"kind":      kindProperty,
				"name":      {Type: "string"},
				"parent_id": {Type: "string", Description: "Parent category; omit for a top-level category"},
			},
			Required: []string{"name"},
		},
	}, true, s.toolCategoryCreate)

	s.addTool(Tool{
		Name:        "notebase.note.create",
		Description: "Create a note",
		InputSchema: InputSchema{
			Properties: map[string]Property{
				"title":       {Type: "string"},
				"content":     {Type: "string"},
				"category_id": {Type: "string"},
			},
			Required: []string{"title"},
		},
	}, true, s.toolNoteCreate)

	s.addTool(Tool{
		Name:        "notebase.todo.create",
		Description: "Create a todo",
		InputSchema: InputSchema{
			Properties: map[string]Property{
				"text":        {Type: "string"},
				"category_id": {Type: "string"},
				"priority":    {Type: "string", Enum: []string{"none", "low", "medium", "high", "urgent"}},
				"due_date":    {Type: "string", Description: "YYYY-MM-DD"},
				"tags":        {Type: "array", Items: &Property{Type: "string"}},
				"favorite":    {Type: "boolean"},
			},
			Required: []string{"text"},
		},
	}, true, s.toolTodoCreate)

	s.addTool(Tool{
		Name:        "notebase.todo.toggle",
		Description: "Complete an active todo or reopen a completed one",
		InputSchema: InputSchema{
			Properties: map[string]Property{"id": {Type: "string"}},
			Required:   []string{"id"},
		},
	}, true, s.toolTodoToggle)
}

func (s *Server) toolTree(ctx context.Context, args map[string]any) (*CallToolResult, error) {
	kind, err := kindArg(args)
	if err != nil {
		return failed(err), nil
	}
	var nodes []query.TreeNode
	if from := idArg(args, "from"); !from.IsZero() {
		nodes, err = s.app.Queries().Subtree(ctx, kind, from)
	} else {
		nodes, err = s.app.Queries().Tree(ctx, kind)
	}
	if err != nil {
		return failed(err), nil
	}
	return jsonResult(nodes)
}

func (s *Server) toolTreeCheck(ctx context.Context, args map[string]any) (*CallToolResult, error) {
	kind, err := kindArg(args)
	if err != nil {
		return failed(err), nil
	}
	checker, err := s.app.TreeChecker(kind)
	if err != nil {
		return failed(err), nil
	}
	report, err := checker.Diagnose(ctx)
	if err != nil {
		return failed(err), nil
	}
	return jsonResult(map[string]any{
		"healthy": report.Healthy(),
		"report":  report,
	})
}

func (s *Server) toolNotesList(ctx context.Context, args map[string]any) (*CallToolResult, error) {
	notes, err := s.app.Queries().Notes(ctx, idArg(args, "category_id"))
	if err != nil {
		return failed(err), nil
	}
	return jsonResult(notes)
}

func (s *Server) toolNoteGet(ctx context.Context, args map[string]any) (*CallToolResult, error) {
	id, err := requiredID(args, "id")
	if err != nil {
		return failed(err), nil
	}
	note, err := s.app.Queries().Note(ctx, id)
	if err != nil {
		return failed(err), nil
	}
	return jsonResult(note)
}

func (s *Server) toolTodosList(ctx context.Context, args map[string]any) (*CallToolResult, error) {
	filter := query.Filter{
		CategoryID:    idArg(args, "category_id"),
		Uncategorized: boolArg(args, "uncategorized"),
		Status:        stringArg(args, "status"),
		Tag:           stringArg(args, "tag"),
		FavoritesOnly: boolArg(args, "favorites"),
		Priority:      stringArg(args, "priority"),
		Search:        stringArg(args, "search"),
	}
	todos, err := s.app.Queries().Todos(ctx, filter)
	if err != nil {
		return failed(err), nil
	}
	return jsonResult(todos)
}

type historyEntry struct {
	Position   int64           `json:"position"`
	Sequence   int64           `json:"sequence"`
	Event      string          `json:"event"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func (s *Server) toolHistory(ctx context.Context, args map[string]any) (*CallToolResult, error) {
	id, err := requiredID(args, "id")
	if err != nil {
		return failed(err), nil
	}
	records, _, err := s.app.Store().Load(ctx, id)
	if err != nil {
		return failed(err), nil
	}
	if len(records) == 0 {
		return errorResult(fmt.Sprintf("no events recorded for %s", id)), nil
	}
	entries := make([]historyEntry, len(records))
	for i, r := range records {
		entries[i] = historyEntry{
			Position:   r.Position,
			Sequence:   r.Sequence,
			Event:      r.EventName,
			OccurredAt: r.OccurredAt,
			Payload:    r.Payload,
		}
	}
	return jsonResult(entries)
}

func (s *Server) toolCategoryCreate(ctx context.Context, args map[string]any) (*CallToolResult, error) {
	kind, err := kindArg(args)
	if err != nil {
		return failed(err), nil
	}
	name, parent := stringArg(args, "name"), idArg(args, "parent_id")

	var out any
	if kind == query.TodoCategoryTree {
		out, err = container.Handle(s.app, "mcp todo category create",
			apptodos.NewCreateCategoryUseCase(s.app.Todos()).Execute)(ctx,
			apptodos.CreateCategoryInput{ParentID: parent, Name: name})
	} else {
		out, err = container.Handle(s.app, "mcp category create",
			appnotes.NewCreateCategoryUseCase(s.app.Notes()).Execute)(ctx,
			appnotes.CreateCategoryInput{ParentID: parent, Name: name})
	}
	if err != nil {
		return failed(err), nil
	}
	return jsonResult(out)
}

func (s *Server) toolNoteCreate(ctx context.Context, args map[string]any) (*CallToolResult, error) {
	out, err := container.Handle(s.app, "mcp note create",
		appnotes.NewCreateNoteUseCase(s.app.Notes()).Execute)(ctx, appnotes.CreateNoteInput{
		CategoryID: idArg(args, "category_id"),
		Title:      stringArg(args, "title"),
		Content:    stringArg(args, "content"),
	})
	if err != nil {
		return failed(err), nil
	}
	return jsonResult(out)
}

func (s *Server) toolTodoCreate(ctx context.Context, args map[string]any) (*CallToolResult, error) {
	in := apptodos.CreateTodoInput{
		CategoryID: idArg(args, "category_id"),
		Text:       stringArg(args, "text"),
		Priority:   stringArg(args, "priority"),
		Tags:       stringsArg(args, "tags"),
		Favorite:   boolArg(args, "favorite"),
	}
	if raw := stringArg(args, "due_date"); raw != "" {
		due, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
		if err != nil {
			return errorResult("due_date must be YYYY-MM-DD"), nil
		}
		in.DueDate = &due
	}

	out, err := container.Handle(s.app, "mcp todo create",
		apptodos.NewCreateTodoUseCase(s.app.Todos()).Execute)(ctx, in)
	if err != nil {
		return failed(err), nil
	}
	return jsonResult(out)
}

func (s *Server) toolTodoToggle(ctx context.Context, args map[string]any) (*CallToolResult, error) {
	id, err := requiredID(args, "id")
	if err != nil {
		return failed(err), nil
	}
	out, err := container.Handle(s.app, "mcp todo toggle",
		apptodos.NewToggleTodoCompletionUseCase(s.app.Todos()).Execute)(ctx,
		apptodos.ToggleTodoCompletionInput{ID: id})
	if err != nil {
		return failed(err), nil
	}
	return jsonResult(out)
}

// registerResources registers all resource handlers.
func (s *Server) registerResources() {
	s.addResource(Resource{
		URI:         "notebase://trees/notes",
		Name:        "Notebook tree",
		Description: "Notebook categories and notes",
		MIMEType:    "application/json",
	}, s.treeResource(query.NoteTree))
	s.addResource(Resource{
		URI:         "notebase://trees/todos",
		Name:        "Todo category tree",
		Description: "Todo categories",
		MIMEType:    "application/json",
	}, s.treeResource(query.TodoCategoryTree))
	s.addResource(Resource{
		URI:         "notebase://todos/active",
		Name:        "Active todos",
		Description: "Every todo that is not completed",
		MIMEType:    "application/json",
	}, s.resourceActiveTodos)
	s.addResource(Resource{
		URI:         "notebase://projections",
		Name:        "Projection status",
		Description: "Watermarks, rejected records and the sync breaker",
		MIMEType:    "application/json",
	}, s.resourceProjections)
}

func (s *Server) treeResource(kind query.TreeKind) ResourceHandler {
	return func(ctx context.Context, uri string) (*ReadResourceResult, error) {
		nodes, err := s.app.Queries().Tree(ctx, kind)
		if err != nil {
			return nil, err
		}
		return jsonResource(uri, nodes)
	}
}

func (s *Server) resourceActiveTodos(ctx context.Context, uri string) (*ReadResourceResult, error) {
	todos, err := s.app.Queries().Todos(ctx, query.Filter{Status: "active"})
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, todos)
}

func (s *Server) resourceProjections(ctx context.Context, uri string) (*ReadResourceResult, error) {
	statuses, err := s.app.Orchestrator().Status(ctx)
	if err != nil {
		return nil, err
	}
	rejections, err := s.app.Orchestrator().Rejections(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, map[string]any{
		"breaker":     s.app.Sync().State(),
		"projections": statuses,
		"rejections":  rejections,
	})
}

// registerPrompts registers all prompt handlers.
func (s *Server) registerPrompts() {
	s.addPrompt(Prompt{
		Name:        "daily-review",
		Description: "Review active todos and suggest what to do today",
		Arguments: []PromptArgument{
			{Name: "category_id", Description: "Limit the review to one category"},
		},
	}, s.promptDailyReview)
	s.addPrompt(Prompt{
		Name:        "organize-notebook",
		Description: "Suggest a cleaner notebook category structure",
	}, s.promptOrganizeNotebook)
}

func (s *Server) promptDailyReview(ctx context.Context, args map[string]string) (*GetPromptResult, error) {
	filter := query.Filter{Status: "active"}
	if raw := args["category_id"]; raw != "" {
		id, err := eventsource.ParseID(raw)
		if err != nil {
			return nil, err
		}
		filter.CategoryID = id
	}
	todos, err := s.app.Queries().Todos(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Most urgent first, then by due date.
	rank := map[string]int{"urgent": 0, "high": 1, "medium": 2, "low": 3, "none": 4}
	sort.SliceStable(todos, func(i, j int) bool {
		if rank[todos[i].Priority] != rank[todos[j].Priority] {
			return rank[todos[i].Priority] < rank[todos[j].Priority]
		}
		return dueBefore(todos[i].DueDate, todos[j].DueDate)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Here are my %d active todos, most urgent first:\n\n", len(todos))
	for _, t := range todos {
		fmt.Fprintf(&b, "- [%s] %s", t.Priority, t.Text)
		if t.DueDate != nil {
			fmt.Fprintf(&b, " (due %s)", t.DueDate.Format(time.DateOnly))
		}
		if len(t.Tags) > 0 {
			fmt.Fprintf(&b, " #%s", strings.Join(t.Tags, " #"))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nPick at most five to focus on today and say why. Flag anything overdue.")

	return userPrompt("Daily todo review", b.String()), nil
}

func (s *Server) promptOrganizeNotebook(ctx context.Context, _ map[string]string) (*GetPromptResult, error) {
	nodes, err := s.app.Queries().Tree(ctx, query.NoteTree)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("This is my notebook, one line per category or note, indented by depth:\n\n")
	for _, n := range nodes {
		depth := strings.Count(n.Path, projection.PathSeparator)
		fmt.Fprintf(&b, "%s- %s (%s)\n", strings.Repeat("  ", depth), n.Name, n.NodeType)
	}
	b.WriteString("\nSuggest category moves or renames that would make it easier to navigate. " +
		"Sibling names must stay unique and a category cannot move under its own descendants.")

	return userPrompt("Notebook organization", b.String()), nil
}

func dueBefore(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}

// failed turns a use case or query error into a tool-level error result,
// which the agent can read and act on.
func failed(err error) *CallToolResult {
	msg := rperrors.UserMessage(err)
	if kind := rperrors.GetKind(err); kind != rperrors.KindUnknown {
		msg = fmt.Sprintf("%s: %s", kind, msg)
	}
	return errorResult(msg)
}

func kindArg(args map[string]any) (query.TreeKind, error) {
	kind := query.TreeKind(stringArg(args, "kind"))
	if kind == "" {
		return query.NoteTree, nil
	}
	if _, err := kind.Table(); err != nil {
		return "", rperrors.ValidationWrap(err, "mcp.kind", fmt.Sprintf("unknown tree %q", kind))
	}
	return kind, nil
}

func stringArg(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return strings.TrimSpace(v)
}

func boolArg(args map[string]any, name string) bool {
	v, _ := args[name].(bool)
	return v
}

func stringsArg(args map[string]any, name string) []string {
	raw, _ := args[name].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func idArg(args map[string]any, name string) eventsource.ID {
	id, err := eventsource.ParseID(stringArg(args, name))
	if err != nil {
		return ""
	}
	return id
}

func requiredID(args map[string]any, name string) (eventsource.ID, error) {
	id, err := eventsource.ParseID(stringArg(args, name))
	if err != nil {
		return "", rperrors.ValidationWrap(err, "mcp.args", name+" is required")
	}
	return id, nil
}
