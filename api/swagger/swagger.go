package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "TaxDesk API",
        "description": "Service order and assignment management for the TaxDesk consulting portal",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Login, token refresh and session management"},
        {"name": "Accounts", "description": "Staff and customer account management"},
        {"name": "Catalog", "description": "Service catalog and packages"},
        {"name": "Leads", "description": "Inquiry pipeline and conversion"},
        {"name": "Orders", "description": "Order lifecycle, review and documents"},
        {"name": "Assignments", "description": "Customer to employee assignment"},
        {"name": "Payments", "description": "Package purchase via payment gateway"},
        {"name": "Wallet", "description": "Referral wallet"},
        {"name": "Dashboards", "description": "Role-scoped dashboards"},
        {"name": "Exports", "description": "CSV and PDF reports"},
        {"name": "Metrics", "description": "Runtime metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
