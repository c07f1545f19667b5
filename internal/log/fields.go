package log

// Field names shared across components so log lines aggregate cleanly.
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldHouseholdKey = "household_key"
	FieldReferenceKey = "reference_key"
	FieldRevision     = "revision"
	FieldPeriod       = "period"
	FieldBudgetID     = "budget_id"
	FieldExpenseID    = "expense_id"
	FieldAmountCents  = "amount_cents"
	FieldUser         = "user"
	FieldQueue        = "queue"
	FieldBackend      = "backend"
)

// Component names.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentStore     = "store"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentBackend   = "backend"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
)
