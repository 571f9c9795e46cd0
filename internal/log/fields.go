package log

// Common field names for structured logging.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldOwnerID     = "owner_id"
	FieldMovementID  = "movement_id"
	FieldAccountID   = "account_id"
	FieldToAccountID = "to_account_id"
	FieldCategoryID  = "category_id"
	FieldBillID      = "bill_id"
	FieldKind        = "kind"
	FieldAmount      = "amount"
)

// Standard component names.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentDashboard = "dashboard"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
)

// Standard operation names.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpList   = "list"
	OpRead   = "read"
)
