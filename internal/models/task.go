package models

// TaskRequest is the slice of the task workflow's record the chat core
// needs: the owner becomes the first participant and the title seeds the
// opening system message. The task workflow itself lives outside this core.
type TaskRequest struct {
	ID     string `bson:"_id,omitempty" json:"id"`
	Title  string `bson:"title" json:"title"`
	UserID string `bson:"userId" json:"userId"`
	Status string `bson:"status" json:"status"`
}
