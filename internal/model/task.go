package model

import "time"

// Task is the persisted elapsed time of one task.
type Task struct {
	ID        string    `json:"id"`
	Elapsed   string    `json:"elapsed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskFile is the structure stored in tasks.json.
type TaskFile struct {
	Active    []Task `json:"active"`
	Completed []Task `json:"completed"`
}

// FindActive returns the index of id in Active, or -1.
func (f TaskFile) FindActive(id string) int {
	return find(f.Active, id)
}

// FindCompleted returns the index of id in Completed, or -1.
func (f TaskFile) FindCompleted(id string) int {
	return find(f.Completed, id)
}

func find(tasks []Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
