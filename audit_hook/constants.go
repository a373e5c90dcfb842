package audithook

// Action constants for audit events.
const (
	// Allocation actions
	ActionOrderAllocated   = "order.allocated"
	ActionOrderShortfall   = "order.shortfall"
	ActionAllocationFailed = "allocation.failed"

	// Stock actions
	ActionStockReserved  = "stock.reserved"
	ActionStockReleased  = "stock.released"
	ActionStockShipped   = "stock.shipped"
	ActionStockAdjusted  = "stock.adjusted"
	ActionStockRestocked = "stock.restocked"

	// Pickup actions
	ActionPickupCreated   = "pickup.created"
	ActionPickupReady     = "pickup.ready"
	ActionPickupCompleted = "pickup.completed"
	ActionPickupCancelled = "pickup.cancelled"

	// Transfer actions
	ActionTransferCreated   = "transfer.created"
	ActionTransferInitiated = "transfer.initiated"
	ActionTransferReceived  = "transfer.received"
	ActionTransferCancelled = "transfer.cancelled"
)

// Resource constants for audit events.
const (
	ResourceOrder    = "order"
	ResourceStock    = "stock"
	ResourcePickup   = "pickup"
	ResourceTransfer = "transfer"
)

// Category constants for audit events.
const (
	CategoryAllocation = "allocation"
	CategoryInventory  = "inventory"
	CategoryWorkflow   = "workflow"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
