package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/pkg/config"
	"github.com/taxdesk/taxdesk-api/pkg/jobs"
)

type mailSender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

type notificationAccountStore interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
}

// emailPayload is the queued unit of work.
type emailPayload struct {
	To      string
	Subject string
	Text    string
}

// NotificationService sends lifecycle emails. Delivery is fire-and-forget
// through a background worker queue so request handling never blocks on
// SMTP; failed sends retry and are eventually dropped with a log line.
type NotificationService struct {
	mailer   mailSender
	accounts notificationAccountStore
	queue    *jobs.Queue
	logger   *zap.Logger
}

// NewNotificationService constructs the service and its dispatch queue. Call
// Start before use and Stop on shutdown.
func NewNotificationService(mailer mailSender, accounts notificationAccountStore, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	s := &NotificationService{mailer: mailer, accounts: accounts, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// AccountCreated mails login instructions with the generated password.
func (s *NotificationService) AccountCreated(account *models.Account, tempPassword string) {
	s.enqueue(account.Email, "Your TaxDesk account",
		fmt.Sprintf("Hello %s,\n\nYour account %s has been created. Temporary password: %s\nPlease change it after your first login.",
			account.FullName, account.ID, tempPassword))
}

// LeadAssigned notifies the employee of a new lead.
func (s *NotificationService) LeadAssigned(lead *models.Lead, employee *models.Account) {
	s.enqueue(employee.Email, fmt.Sprintf("New lead %s assigned to you", lead.ID),
		fmt.Sprintf("Hello %s,\n\nLead %s (%s, service %s) has been assigned to you. Please accept or decline it in the portal.",
			employee.FullName, lead.ID, lead.FullName, lead.ServiceID))
}

// OrderCreated notifies the customer of a new order.
func (s *NotificationService) OrderCreated(order *models.Order) {
	s.notifyAccount(order.CustomerID, fmt.Sprintf("Order %s confirmed", order.ID),
		fmt.Sprintf("Your order %s for %s (%s) is confirmed. Expected completion: %s.",
			order.ID, order.ServiceName, order.PackageName, order.DueDate.Format("02 Jan 2006")))
}

// OrderStatusChanged notifies the customer of a lifecycle change.
func (s *NotificationService) OrderStatusChanged(order *models.Order) {
	s.notifyAccount(order.CustomerID, fmt.Sprintf("Order %s update", order.ID),
		fmt.Sprintf("Your order %s for %s is now %s.", order.ID, order.ServiceName, order.Status))
}

// OrderAssigned notifies both sides of a new assignment: the customer learns
// who handles their order, the employee learns of the new work item.
func (s *NotificationService) OrderAssigned(order *models.Order, employee *models.Account) {
	s.notifyAccount(order.CustomerID, fmt.Sprintf("Order %s assigned", order.ID),
		fmt.Sprintf("Your order %s is now handled by %s.", order.ID, employee.FullName))
	s.enqueue(employee.Email, fmt.Sprintf("Customer assigned to you: order %s", order.ID),
		fmt.Sprintf("Hello %s,\n\nOrder %s (customer %s) has been assigned to you.",
			employee.FullName, order.ID, order.CustomerID))
}

// OrderSentForReview notifies the reviewing supervisor.
func (s *NotificationService) OrderSentForReview(order *models.Order, reviewer *models.Account) {
	s.enqueue(reviewer.Email, fmt.Sprintf("Order %s awaits your review", order.ID),
		fmt.Sprintf("Hello %s,\n\nOrder %s (%s, %s) has been submitted for review.",
			reviewer.FullName, order.ID, order.ServiceName, order.PackageName))
}

// OrderReviewed tells the assigned employee how the review went.
func (s *NotificationService) OrderReviewed(order *models.Order, employee *models.Account, approved bool) {
	if approved {
		s.enqueue(employee.Email, fmt.Sprintf("Order %s approved", order.ID),
			fmt.Sprintf("Hello %s,\n\nOrder %s passed review and is now completed.",
				employee.FullName, order.ID))
		return
	}
	note := ""
	if order.RevisionNote != nil {
		note = *order.RevisionNote
	}
	s.enqueue(employee.Email, fmt.Sprintf("Order %s returned for revision", order.ID),
		fmt.Sprintf("Hello %s,\n\nOrder %s did not pass review. Note: %s",
			employee.FullName, order.ID, note))
}

func (s *NotificationService) notifyAccount(accountID, subject, text string) {
	account, err := s.accounts.FindByID(context.Background(), accountID)
	if err != nil {
		s.logger.Warn("notification recipient lookup failed",
			zap.String("account_id", accountID), zap.Error(err))
		return
	}
	s.enqueue(account.Email, subject, text)
}

func (s *NotificationService) enqueue(to, subject, text string) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "email",
		Payload: emailPayload{To: to, Subject: subject, Text: text},
	})
	if err != nil {
		s.logger.Warn("enqueue notification", zap.String("to", to), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(emailPayload)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.mailer.Send(ctx, payload.To, payload.Subject, payload.Text, "")
}
