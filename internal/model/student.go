package model

// Student identifies the examinee of a session. It is built from the token
// claims; the engine never reads the students table.
type Student struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	ClassID int    `json:"class_id,omitempty"`
}
