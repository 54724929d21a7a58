package models

// Token is one manipulable card on the board.
type Token struct {
	ID         string  `json:"id"`
	TemplateID string  `json:"template_id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Angle      float64 `json:"angle"`
	Scale      float64 `json:"scale"`
	IsFront    bool    `json:"is_front"`
	BackImage  string  `json:"back_image,omitempty"`
}

// Clone returns a copy safe to hand outside the store.
func (t *Token) Clone() *Token {
	c := *t
	return &c
}
