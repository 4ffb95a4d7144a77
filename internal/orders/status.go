package orders

// Status is one of the fixed pipeline stages an order moves through. Any
// status may follow any other; the validator checks membership only.
type Status string

const (
	StatusPending             Status = "pending"
	StatusAcknowledged        Status = "acknowledged"
	StatusConsulting          Status = "consulting"
	StatusDemoPending         Status = "demo_pending"
	StatusDemoSent            Status = "demo_sent"
	StatusDemoConfirmPending  Status = "demo_confirm_pending"
	StatusDemoEditing         Status = "demo_editing"
	StatusDemoApprovalPending Status = "demo_approval_pending"
	StatusPaymentPending      Status = "payment_pending"
	StatusPaid                Status = "paid"
	StatusDesignPending       Status = "design_pending"
	StatusDesignApproved      Status = "design_approved"
	StatusManufacturing       Status = "manufacturing"
	StatusCompleted           Status = "completed"
	StatusDelivered           Status = "delivered"
	StatusComplaintResolving  Status = "complaint_resolving"
	StatusComplaintClosed     Status = "complaint_closed"
)

type Phase string

const (
	PhaseIntake      Phase = "intake"
	PhaseDemo        Phase = "demo"
	PhaseFinance     Phase = "finance"
	PhaseProduction  Phase = "production"
	PhaseFulfillment Phase = "fulfillment"
	PhaseAfterSales  Phase = "after-sales"
)

// AllStatuses is the catalog in pipeline order.
var AllStatuses = []Status{
	StatusPending, StatusAcknowledged, StatusConsulting,
	StatusDemoPending, StatusDemoSent, StatusDemoConfirmPending, StatusDemoEditing, StatusDemoApprovalPending,
	StatusPaymentPending, StatusPaid,
	StatusDesignPending, StatusDesignApproved, StatusManufacturing,
	StatusCompleted, StatusDelivered,
	StatusComplaintResolving, StatusComplaintClosed,
}

var statusPhase = map[Status]Phase{
	StatusPending:             PhaseIntake,
	StatusAcknowledged:        PhaseIntake,
	StatusConsulting:          PhaseIntake,
	StatusDemoPending:         PhaseDemo,
	StatusDemoSent:            PhaseDemo,
	StatusDemoConfirmPending:  PhaseDemo,
	StatusDemoEditing:         PhaseDemo,
	StatusDemoApprovalPending: PhaseDemo,
	StatusPaymentPending:      PhaseFinance,
	StatusPaid:                PhaseFinance,
	StatusDesignPending:       PhaseProduction,
	StatusDesignApproved:      PhaseProduction,
	StatusManufacturing:       PhaseProduction,
	StatusCompleted:           PhaseFulfillment,
	StatusDelivered:           PhaseFulfillment,
	StatusComplaintResolving:  PhaseAfterSales,
	StatusComplaintClosed:     PhaseAfterSales,
}

func (s Status) Valid() bool {
	_, ok := statusPhase[s]
	return ok
}

func (s Status) Phase() Phase { return statusPhase[s] }
