package coordinator

import (
	"fmt"

	"github.com/Tiliavir/precise-time-tracker/internal/model"
	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
)

// IssueKind classifies an integrity problem in the task store.
type IssueKind string

const (
	IssueActiveAndCompleted IssueKind = "active-and-completed"
	IssueDuplicate          IssueKind = "duplicate"
	IssueInvalidElapsed     IssueKind = "invalid-elapsed"
)

// Issue is one integrity problem. Issues are reported, never repaired.
type Issue struct {
	Kind   IssueKind
	TaskID string
	Detail string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: task %s: %s", i.Kind, i.TaskID, i.Detail)
}

// CheckIntegrity reports tasks present in both sets, tasks listed twice in
// one set and elapsed values that are not valid HH:MM:SS.
func CheckIntegrity(f model.TaskFile) []Issue {
	var issues []Issue

	check := func(set string, tasks []model.Task) map[string]bool {
		seen := make(map[string]bool, len(tasks))
		for _, t := range tasks {
			if seen[t.ID] {
				issues = append(issues, Issue{Kind: IssueDuplicate, TaskID: t.ID, Detail: "listed twice in " + set})
			}
			seen[t.ID] = true
			if !timecalc.Valid(t.Elapsed) {
				issues = append(issues, Issue{Kind: IssueInvalidElapsed, TaskID: t.ID, Detail: fmt.Sprintf("%s elapsed %q", set, t.Elapsed)})
			}
		}
		return seen
	}

	active := check("active", f.Active)
	completed := check("completed", f.Completed)
	for _, t := range f.Active {
		if completed[t.ID] && active[t.ID] {
			issues = append(issues, Issue{Kind: IssueActiveAndCompleted, TaskID: t.ID, Detail: "present in active and completed"})
			delete(active, t.ID)
		}
	}
	return issues
}
