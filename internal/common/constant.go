package common

// AppName is used for the default data directory and log attributes.
const AppName = "postkeeper"

// Log attribute keys shared by every task and webhook boundary.
const (
	LogKeyPostID     = "post_id"
	LogKeyApprovalID = "approval_id"
	LogKeyAction     = "action"
	LogKeyTask       = "task"
)
