package models

// BoardState is a full snapshot of one session's board, used for initial
// load and persistence. Deltas on the wire never carry it.
type BoardState struct {
	SessionID string   `json:"session_id"`
	Viewport  Viewport `json:"viewport"`
	Tokens    []*Token `json:"tokens"`
}
