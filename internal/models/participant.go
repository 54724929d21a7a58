package models

// Participant is one connected member of a board session.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	IsOwner     bool   `json:"is_owner"`
}
