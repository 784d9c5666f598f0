// Package dto provides data transfer objects for the HTTP API.
package dto

import "time"

// ListResponse wraps a collection.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// ErrorResponse is an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// CreateCategoryRequest creates a notebook or todo category.
type CreateCategoryRequest struct {
	ParentID string `json:"parent_id,omitempty"`
	Name     string `json:"name"`
}

// RenameRequest renames a category or note.
type RenameRequest struct {
	Name string `json:"name"`
}

// MoveRequest re-parents a category or refiles a note or todo. An empty
// parent moves to the top level.
type MoveRequest struct {
	ParentID string `json:"parent_id,omitempty"`
}

// CreateNoteRequest creates a note.
type CreateNoteRequest struct {
	CategoryID string `json:"category_id,omitempty"`
	Title      string `json:"title"`
	Content    string `json:"content,omitempty"`
}

// NoteContentRequest replaces a note's content.
type NoteContentRequest struct {
	Content string `json:"content"`
}

// PinRequest pins or unpins a note.
type PinRequest struct {
	Pinned bool `json:"pinned"`
}

// CreateTodoRequest creates a todo.
type CreateTodoRequest struct {
	CategoryID string   `json:"category_id,omitempty"`
	Text       string   `json:"text"`
	Priority   string   `json:"priority,omitempty"`
	DueDate    string   `json:"due_date,omitempty"` // YYYY-MM-DD
	Tags       []string `json:"tags,omitempty"`
	Favorite   bool     `json:"favorite,omitempty"`
}

// UpdateTodoRequest changes todo attributes. Nil fields are left alone;
// an empty due_date clears it.
type UpdateTodoRequest struct {
	Text     *string `json:"text,omitempty"`
	Priority *string `json:"priority,omitempty"`
	DueDate  *string `json:"due_date,omitempty"`
	Favorite *bool   `json:"favorite,omitempty"`
}

// TagRequest adds or removes a tag.
type TagRequest struct {
	Tag string `json:"tag"`
}

// HistoryEntryDTO is one recorded event.
type HistoryEntryDTO struct {
	Position      int64     `json:"position"`
	Sequence      int64     `json:"sequence"`
	AggregateType string    `json:"aggregate_type"`
	EventName     string    `json:"event_name"`
	OccurredAt    time.Time `json:"occurred_at"`
	Payload       any       `json:"payload"`
}

// WebSocketEventDTO is the payload for committed-event messages.
type WebSocketEventDTO struct {
	EventName   string    `json:"event_name"`
	AggregateID string    `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Data        any       `json:"data,omitempty"`
}

// WebSocketSyncDTO is the payload sent after the read database caught up
// with writes made by another process.
type WebSocketSyncDTO struct {
	Head      int64     `json:"head"`
	Timestamp time.Time `json:"timestamp"`
}
