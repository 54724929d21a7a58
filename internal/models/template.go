package models

// TemplateCard is one entry of the fixed template pool tokens are spawned
// from. FrontImage is shown until the token is first flipped; BackImage is
// what other tokens may borrow as their hidden face.
type TemplateCard struct {
	ID         string `json:"id" yaml:"id"`
	FrontImage string `json:"front_image" yaml:"front_image"`
	BackImage  string `json:"back_image" yaml:"back_image"`
}
