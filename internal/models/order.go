package models

import "time"

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	OrderStatusInProcess       OrderStatus = "in_process"
	OrderStatusPendingL1Review OrderStatus = "pending_l1_review"
	OrderStatusRevision        OrderStatus = "revision"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// legacyStatusAliases maps the free-text spellings used by older clients onto
// the closed enum. "in-process" is the post-revision spelling, distinct from
// the initial "In Process".
var legacyStatusAliases = map[string]OrderStatus{
	"In Process":        OrderStatusInProcess,
	"pending-l1-review": OrderStatusPendingL1Review,
	"in-process":        OrderStatusRevision,
	"completed":         OrderStatusCompleted,
	"Cancelled":         OrderStatusCancelled,
}

// ParseOrderStatus resolves a raw status string, accepting both canonical and
// legacy spellings. The second return is false for unknown values.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	switch OrderStatus(raw) {
	case OrderStatusInProcess, OrderStatusPendingL1Review, OrderStatusRevision,
		OrderStatusCompleted, OrderStatusCancelled:
		return OrderStatus(raw), true
	}
	if mapped, ok := legacyStatusAliases[raw]; ok {
		return mapped, true
	}
	return "", false
}

// Terminal reports whether the status closes the order.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// orderTransitions is the allowed transition table. Terminal states have no
// outgoing edges.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusInProcess:       {OrderStatusPendingL1Review, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusRevision:        {OrderStatusPendingL1Review, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusPendingL1Review: {OrderStatusCompleted, OrderStatusRevision, OrderStatusCancelled},
}

// CanTransitionTo reports whether the target status is reachable from s.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Order tracks a customer's purchase of one service package through its
// lifecycle. Version guards status writes against lost updates.
type Order struct {
	ID              string      `db:"id" json:"id"`
	CustomerID      string      `db:"customer_id" json:"customer_id"`
	ServiceID       string      `db:"service_id" json:"service_id"`
	ServiceName     string      `db:"service_name" json:"service_name"`
	PackageName     string      `db:"package_name" json:"package_name"`
	ProcessingDays  int         `db:"processing_days" json:"processing_days"`
	EmployeeID      *string     `db:"employee_id" json:"employee_id,omitempty"`
	Status          OrderStatus `db:"status" json:"status"`
	PurchasedAt     time.Time   `db:"purchased_at" json:"purchased_at"`
	DueDate         time.Time   `db:"due_date" json:"due_date"`
	DelayReason     *string     `db:"delay_reason" json:"delay_reason,omitempty"`
	SentForReviewAt *time.Time  `db:"sent_for_review_at" json:"sent_for_review_at,omitempty"`
	RevisionNote    *string     `db:"revision_note" json:"revision_note,omitempty"`
	CompletedAt     *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	Amount          float64     `db:"amount" json:"amount"`
	IGST            float64     `db:"igst" json:"igst"`
	CGST            float64     `db:"cgst" json:"cgst"`
	SGST            float64     `db:"sgst" json:"sgst"`
	Version         int         `db:"version" json:"version"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// OrderDocument records metadata for a file stored by the document store.
type OrderDocument struct {
	ID         string    `db:"id" json:"id"`
	OrderID    string    `db:"order_id" json:"order_id"`
	FileName   string    `db:"file_name" json:"file_name"`
	FilePath   string    `db:"file_path" json:"file_path"`
	MimeType   string    `db:"mime_type" json:"mime_type"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// OrderQuery is a customer/employee message thread attached to an order.
type OrderQuery struct {
	ID        string            `db:"id" json:"id"`
	OrderID   string            `db:"order_id" json:"order_id"`
	AuthorID  string            `db:"author_id" json:"author_id"`
	Message   string            `db:"message" json:"message"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	Replies   []OrderQueryReply `json:"replies,omitempty"`
}

// OrderQueryReply is a single reply inside a query thread.
type OrderQueryReply struct {
	ID        string    `db:"id" json:"id"`
	QueryID   string    `db:"query_id" json:"query_id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OrderFeedback is a customer rating left on an order.
type OrderFeedback struct {
	ID        string    `db:"id" json:"id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OrderDetail bundles an order with its attached records.
type OrderDetail struct {
	Order
	Documents []OrderDocument `json:"documents"`
	Queries   []OrderQuery    `json:"queries"`
	Feedback  []OrderFeedback `json:"feedback"`
}

// OrderFilter captures order listing criteria.
type OrderFilter struct {
	CustomerID string
	EmployeeID string
	ServiceID  string
	Status     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
