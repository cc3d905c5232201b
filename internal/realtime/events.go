package realtime

import (
	"github.com/HyphaGroup/lockstep/internal/auth"
)

// EventType identifies a category of realtime event pushed to stream clients.
type EventType string

// Event types for all business operations.
const (
	EventConnected EventType = "connected"

	EventUserCreated EventType = "user-created"
	EventUserUpdated EventType = "user-updated"
	EventUserDeleted EventType = "user-deleted"

	EventLockAcquired EventType = "lock-acquired"
	EventLockReleased EventType = "lock-released"

	EventJobCardCreated   EventType = "job-card-created"
	EventJobCardUpdated   EventType = "job-card-updated"
	EventJobCardCompleted EventType = "job-card-completed"

	EventInventoryUpdated EventType = "inventory-updated"
	EventStockLow         EventType = "stock-low"
	EventStockOut         EventType = "stock-out"

	EventSalaryUpdated    EventType = "salary-updated"
	EventPaymentProcessed EventType = "payment-processed"
	EventInvoiceGenerated EventType = "invoice-generated"

	EventTaskAssigned  EventType = "task-assigned"
	EventTaskCompleted EventType = "task-completed"
	EventTaskOverdue   EventType = "task-overdue"

	EventNotificationSent   EventType = "notification-sent"
	EventSystemAnnouncement EventType = "system-announcement"

	EventOrderCreated   EventType = "order-created"
	EventOrderUpdated   EventType = "order-updated"
	EventOrderCancelled EventType = "order-cancelled"
)

var (
	adminOnly = []auth.Role{auth.RoleAdmin}
	adminMgr  = []auth.Role{auth.RoleAdmin, auth.RoleManager}
	operators = []auth.Role{auth.RoleAdmin, auth.RoleManager, auth.RoleTechnician}
	allStaff  = []auth.Role{auth.RoleAdmin, auth.RoleUser, auth.RoleManager, auth.RoleTechnician}
	everyone  = []auth.Role{auth.RoleAdmin, auth.RoleUser, auth.RoleManager, auth.RoleTechnician, auth.RoleAccounting}
	financial = []auth.Role{auth.RoleAdmin, auth.RoleAccounting}
)

// eventPermissions is the single authorization boundary for fan-out: which
// roles may SEE each event type. The table is fixed at compile time; unknown
// event types map to an empty set (fail closed).
var eventPermissions = map[EventType][]auth.Role{
	// User management and collaborative editing - admin only
	EventUserCreated:  adminOnly,
	EventUserUpdated:  adminOnly,
	EventUserDeleted:  adminOnly,
	EventLockAcquired: adminOnly,
	EventLockReleased: adminOnly,

	// Job cards - all staff
	EventJobCardCreated:   allStaff,
	EventJobCardUpdated:   allStaff,
	EventJobCardCompleted: allStaff,

	// Inventory - admin, manager, technician
	EventInventoryUpdated: operators,
	EventStockLow:         operators,
	EventStockOut:         operators,

	// Financial - admin, accounting
	EventSalaryUpdated:    financial,
	EventPaymentProcessed: financial,
	EventInvoiceGenerated: financial,

	// Tasks - all staff
	EventTaskAssigned:  allStaff,
	EventTaskCompleted: allStaff,
	EventTaskOverdue:   allStaff,

	// Notifications - everyone
	EventNotificationSent:   everyone,
	EventSystemAnnouncement: everyone,

	// Orders - admin, manager
	EventOrderCreated:   adminMgr,
	EventOrderUpdated:   adminMgr,
	EventOrderCancelled: adminMgr,
}

// producerPermissions lists which roles may TRIGGER a broadcast of each
// event type. Producer rights are deliberately narrower than consumer
// eligibility for several types (e.g. anyone on staff sees task-overdue but
// only admins and managers may raise it).
var producerPermissions = map[EventType][]auth.Role{
	EventUserCreated:  adminOnly,
	EventUserUpdated:  adminOnly,
	EventUserDeleted:  adminOnly,
	EventLockAcquired: adminOnly,
	EventLockReleased: adminOnly,

	EventJobCardCreated:   allStaff,
	EventJobCardUpdated:   allStaff,
	EventJobCardCompleted: allStaff,

	EventInventoryUpdated: operators,
	EventStockLow:         operators,
	EventStockOut:         operators,

	EventSalaryUpdated:    financial,
	EventPaymentProcessed: financial,
	EventInvoiceGenerated: financial,

	EventTaskAssigned:  adminMgr,
	EventTaskCompleted: allStaff,
	EventTaskOverdue:   adminMgr,

	EventNotificationSent:   adminMgr,
	EventSystemAnnouncement: adminOnly,

	EventOrderCreated:   adminMgr,
	EventOrderUpdated:   adminMgr,
	EventOrderCancelled: adminMgr,
}

// EligibleRoles returns the roles permitted to receive eventType.
// Unknown event types return an empty set.
func EligibleRoles(eventType EventType) []auth.Role {
	return eventPermissions[eventType]
}

// CanReceive returns true if role may receive eventType.
func CanReceive(eventType EventType, role auth.Role) bool {
	for _, r := range eventPermissions[eventType] {
		if r == role {
			return true
		}
	}
	return false
}

// CanTrigger returns true if role may request a broadcast of eventType.
func CanTrigger(eventType EventType, role auth.Role) bool {
	for _, r := range producerPermissions[eventType] {
		if r == role {
			return true
		}
	}
	return false
}

// RequiredProducerRoles returns the roles allowed to trigger eventType,
// for permission-denied responses.
func RequiredProducerRoles(eventType EventType) []auth.Role {
	return producerPermissions[eventType]
}
