package gate

// Action is the verb half of a "resource:action" permission.
type Action string

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionApprove Action = "approve"
	ActionAll     Action = WildcardAll
)
