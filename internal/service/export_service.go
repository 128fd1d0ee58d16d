package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
	"github.com/taxdesk/taxdesk-api/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type exportOrderStore interface {
	List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error)
}

type exportLeadStore interface {
	List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error)
}

type exportPaymentStore interface {
	ListByCustomer(ctx context.Context, customerID string) ([]models.PaymentOrder, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered report ready for download.
type ExportResult struct {
	FileName    string
	ContentType string
	Payload     []byte
}

// ExportService renders order and lead listings into downloadable CSV or
// PDF reports for managers and admins.
type ExportService struct {
	orders   exportOrderStore
	leads    exportLeadStore
	payments exportPaymentStore
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(orders exportOrderStore, leads exportLeadStore, payments exportPaymentStore, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{orders: orders, leads: leads, payments: payments, csv: csv, pdf: pdf, logger: logger}
}

// Orders renders an order listing.
func (s *ExportService) Orders(ctx context.Context, filter models.OrderFilter, format ExportFormat) (*ExportResult, error) {
	filter.PageSize = 100
	if filter.Page < 1 {
		filter.Page = 1
	}
	orders, _, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	dataset := export.Dataset{
		Headers: []string{"Order ID", "Customer", "Service", "Package", "Employee", "Status", "Purchased", "Due", "Amount"},
	}
	for _, order := range orders {
		employee := ""
		if order.EmployeeID != nil {
			employee = *order.EmployeeID
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Order ID":  order.ID,
			"Customer":  order.CustomerID,
			"Service":   order.ServiceName,
			"Package":   order.PackageName,
			"Employee":  employee,
			"Status":    string(order.Status),
			"Purchased": order.PurchasedAt.Format("2006-01-02"),
			"Due":       order.DueDate.Format("2006-01-02"),
			"Amount":    strconv.FormatFloat(order.Amount, 'f', 2, 64),
		})
	}
	return s.render(dataset, "orders", "Order Report", format)
}

// Leads renders a lead listing.
func (s *ExportService) Leads(ctx context.Context, filter models.LeadFilter, format ExportFormat) (*ExportResult, error) {
	filter.PageSize = 100
	if filter.Page < 1 {
		filter.Page = 1
	}
	leads, _, err := s.leads.List(ctx, filter)
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	dataset := export.Dataset{
		Headers: []string{"Lead ID", "Name", "Email", "Service", "Status", "Employee", "Created"},
	}
	for _, lead := range leads {
		employee := ""
		if lead.EmployeeID != nil {
			employee = *lead.EmployeeID
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Lead ID":  lead.ID,
			"Name":     lead.FullName,
			"Email":    lead.Email,
			"Service":  lead.ServiceID,
			"Status":   string(lead.Status),
			"Employee": employee,
			"Created":  lead.CreatedAt.Format("2006-01-02"),
		})
	}
	return s.render(dataset, "leads", "Lead Report", format)
}

// CustomerPayments renders one customer's payment history.
func (s *ExportService) CustomerPayments(ctx context.Context, customerID string, format ExportFormat) (*ExportResult, error) {
	payments, err := s.payments.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	dataset := export.Dataset{
		Headers: []string{"Payment ID", "Gateway Order", "Service", "Package", "Total", "Status", "Created"},
	}
	for _, payment := range payments {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Payment ID":    payment.ID,
			"Gateway Order": payment.GatewayOrderID,
			"Service":       payment.ServiceID,
			"Package":       payment.PackageName,
			"Total":         strconv.FormatFloat(payment.TotalAmount, 'f', 2, 64),
			"Status":        string(payment.Status),
			"Created":       payment.CreatedAt.Format("2006-01-02"),
		})
	}
	return s.render(dataset, "payments_"+strings.ToLower(customerID), "Payment Report", format)
}

func (s *ExportService) render(dataset export.Dataset, name, title string, format ExportFormat) (*ExportResult, error) {
	stamp := time.Now().UTC().Format("20060102_150405")
	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("%s_%s.csv", name, stamp),
			ContentType: "text/csv",
			Payload:     payload,
		}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("%s_%s.pdf", name, stamp),
			ContentType: "application/pdf",
			Payload:     payload,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}
