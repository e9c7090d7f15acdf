// Package todo implements the to-do item store and its HTTP endpoints.
package todo

// Item is a stored to-do item. ID is assigned by storage on insert.
type Item struct {
	ID         int64   `json:"id"`
	Title      *string `json:"title"`
	IsComplete bool    `json:"isComplete"`
}

// CreateRequest is the body accepted by POST /todos. A client-supplied id is
// not part of it and is therefore ignored.
type CreateRequest struct {
	Title      *string `json:"title"`
	IsComplete bool    `json:"isComplete"`
}

// Item converts the request into an unsaved item
func (r CreateRequest) Item() Item {
	return Item{Title: r.Title, IsComplete: r.IsComplete}
}
