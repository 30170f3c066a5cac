package queue

import "fmt"

// Kind identifies which pipeline handles a task.
type Kind string

const (
	KindFileAnalysis Kind = "file_analysis"
	KindCarve        Kind = "carve"
	// KindReport never travels through the queue; reporting modules receive it
	// when the reporting pipeline runs over the whole case.
	KindReport Kind = "report"
)

// Valid reports whether k is non-empty. Kinds unknown to the scheduler are
// still valid queue entries; the drain loop warns and skips them.
func (k Kind) Valid() bool {
	return k != ""
}

// Task is one unit of schedulable work. ID is opaque to the queue: a file id
// for FileAnalysis, a carve batch id for Carve.
type Task struct {
	Kind Kind
	ID   int64
}

func (t Task) String() string {
	return fmt.Sprintf("%s(%d)", t.Kind, t.ID)
}
