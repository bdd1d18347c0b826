// Package docs holds the OpenAPI document served at /swagger/*any.
//
// Regenerate from the handler annotations with:
//
//	swag init -g cmd/server/main.go -o internal/docs --parseInternal
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/ask": {"post": {"tags": ["Chat"], "summary": "Send a widget chat message", "operationId": "ask", "security": [{"ApiKeyAuth": []}]}},
        "/auth/signup": {"post": {"tags": ["Auth"], "summary": "Register an account", "operationId": "signup"}},
        "/auth/login": {"post": {"tags": ["Auth"], "summary": "Log in", "operationId": "login"}},
        "/auth/profile": {"get": {"tags": ["Auth"], "summary": "Current account", "operationId": "profile", "security": [{"BearerAuth": []}]}},
        "/auth/regenerate-api-key": {"post": {"tags": ["Auth"], "summary": "Rotate the widget API key", "operationId": "regenerateApiKey", "security": [{"BearerAuth": []}]}},
        "/auth/widget-config": {"put": {"tags": ["Auth"], "summary": "Update widget appearance", "operationId": "updateWidgetConfig", "security": [{"BearerAuth": []}]}},
        "/widget-config": {"get": {"tags": ["Chat"], "summary": "Widget appearance for an API key", "operationId": "widgetConfig"}},
        "/usage": {"get": {"tags": ["Usage"], "summary": "Monthly usage and plan limit", "operationId": "usage", "security": [{"BearerAuth": []}]}},
        "/analytics": {"get": {"tags": ["Analytics"], "summary": "Dashboard analytics", "operationId": "analytics", "security": [{"BearerAuth": []}]}},
        "/message-logs": {"get": {"tags": ["Analytics"], "summary": "Recent message logs", "operationId": "messageLogs", "security": [{"BearerAuth": []}]}},
        "/sessions": {"get": {"tags": ["Sessions"], "summary": "List chat sessions (paginated)", "operationId": "listSessions", "security": [{"BearerAuth": []}]}},
        "/sessions/{id}": {"get": {"tags": ["Sessions"], "summary": "Get a session with its transcript", "operationId": "getSession", "security": [{"BearerAuth": []}]}},
        "/sessions/{id}/end": {"post": {"tags": ["Sessions"], "summary": "End an active session", "operationId": "endSession", "security": [{"BearerAuth": []}]}},
        "/sessions/{id}/rating": {"post": {"tags": ["Sessions"], "summary": "Rate a session", "operationId": "rateSession", "security": [{"BearerAuth": []}]}},
        "/payments/subscription": {
            "get": {"tags": ["Payments"], "summary": "Current subscription", "operationId": "getSubscription", "security": [{"BearerAuth": []}]},
            "post": {"tags": ["Payments"], "summary": "Subscribe to a paid plan", "operationId": "subscribe", "security": [{"BearerAuth": []}]}
        },
        "/payments/subscription/cancel": {"post": {"tags": ["Payments"], "summary": "Cancel at period end", "operationId": "cancelSubscription", "security": [{"BearerAuth": []}]}},
        "/payments/subscription/reactivate": {"post": {"tags": ["Payments"], "summary": "Undo a pending cancellation", "operationId": "reactivateSubscription", "security": [{"BearerAuth": []}]}},
        "/payments/plans": {"get": {"tags": ["Payments"], "summary": "List plans", "operationId": "listPlans"}},
        "/payments/webhook": {"post": {"tags": ["Payments"], "summary": "Payment processor webhook", "operationId": "paymentWebhook"}},
        "/admin/dashboard": {"get": {"tags": ["Admin"], "summary": "Operator dashboard", "operationId": "adminDashboard", "security": [{"AdminKey": []}]}},
        "/admin/subscriptions": {"get": {"tags": ["Admin"], "summary": "Billable subscription totals", "operationId": "adminSubscriptions", "security": [{"AdminKey": []}]}},
        "/admin/accounts": {"get": {"tags": ["Admin"], "summary": "List accounts (paginated)", "operationId": "adminListAccounts", "security": [{"AdminKey": []}]}},
        "/admin/accounts/{id}/plan": {"post": {"tags": ["Admin"], "summary": "Change an account's plan", "operationId": "adminSetPlan", "security": [{"AdminKey": []}]}},
        "/admin/accounts/{id}/usage/reset": {"post": {"tags": ["Admin"], "summary": "Reset monthly usage", "operationId": "adminResetUsage", "security": [{"AdminKey": []}]}}
    },
    "securityDefinitions": {
        "AdminKey": {"type": "apiKey", "name": "X-Admin-Key", "in": "header"},
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"},
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Widget Chat Backend API",
	Description:      "Session and usage tracking for the embeddable AI chat widget.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
