package reconcile

type OpType string

const (
	OpCreate   OpType = "Create"
	OpUpdate   OpType = "Update"
	OpReplace  OpType = "Replace"
	OpDelete   OpType = "Delete"
	OpSuppress OpType = "Suppress"
	OpSkipped  OpType = "Skipped"
)
