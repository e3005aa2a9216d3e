// Package docs registers the OpenAPI description of the ops API with swag
// so gin-swagger can serve it under /swagger.
package docs

import "github.com/swaggo/swag/v2"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Bearer <http.api_token>"
        }
    },
    "paths": {
        "/healthz": {
            "get": {
                "tags": ["system"],
                "summary": "Dependency health",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "all checks pass", "schema": {"$ref": "#/definitions/HealthEnvelope"}},
                    "503": {"description": "a check failed", "schema": {"$ref": "#/definitions/HealthEnvelope"}}
                }
            }
        },
        "/webhooks/shopify/{tenant}": {
            "post": {
                "tags": ["webhooks"],
                "summary": "Shopify webhook",
                "description": "Verifies X-Shopify-Hmac-Sha256 over the raw body and wakes the order or inventory loop for the topic.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "name": "X-Shopify-Hmac-Sha256", "in": "header", "required": true},
                    {"type": "string", "name": "X-Shopify-Topic", "in": "header", "required": true},
                    {"type": "string", "name": "X-Shopify-Shop-Domain", "in": "header"},
                    {"type": "string", "name": "X-Shopify-Webhook-Id", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "ignored topic or redelivery", "schema": {"$ref": "#/definitions/WebhookEnvelope"}},
                    "202": {"description": "run queued", "schema": {"$ref": "#/definitions/WebhookEnvelope"}},
                    "401": {"description": "signature does not verify", "schema": {"$ref": "#/definitions/Error"}},
                    "404": {"description": "unknown tenant", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/v1/system/info": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["system"],
                "summary": "Version and uptime",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SystemInfoEnvelope"}}
                }
            }
        },
        "/api/v1/sync/jobs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["sync"],
                "summary": "Recent runs of every tenant",
                "produces": ["application/json"],
                "parameters": [{"type": "integer", "name": "limit", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/JobList"}}
                }
            }
        },
        "/api/v1/sync/loops": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["sync"],
                "summary": "Scheduled loops",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/LoopList"}}
                }
            }
        },
        "/api/v1/tenants/{tenant}/ledger": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["tenants"],
                "summary": "Ledger entries, newest first",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "name": "kind", "in": "query", "enum": ["order", "inventory"]},
                    {"type": "string", "name": "status", "in": "query", "enum": ["pending", "success", "skipped", "failed"]},
                    {"type": "string", "name": "since", "in": "query", "description": "RFC 3339 or YYYY-MM-DD"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/LedgerList"}},
                    "400": {"description": "bad filter", "schema": {"$ref": "#/definitions/Error"}},
                    "404": {"description": "unknown tenant", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/v1/tenants/{tenant}/jobs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["tenants"],
                "summary": "Recent runs of one tenant",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "tenant", "in": "path", "required": true},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/JobList"}},
                    "404": {"description": "unknown tenant", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/v1/tenants/{tenant}/sync/{kind}": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["tenants"],
                "summary": "Queue an immediate run",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "name": "kind", "in": "path", "required": true, "enum": ["order", "inventory"]}
                ],
                "responses": {
                    "202": {"description": "queued", "schema": {"$ref": "#/definitions/TriggerEnvelope"}},
                    "400": {"description": "bad kind", "schema": {"$ref": "#/definitions/Error"}},
                    "404": {"description": "unknown tenant or loop", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        }
    },
    "definitions": {
        "ErrorInfo": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "request_id": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "Error": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "error": {"$ref": "#/definitions/ErrorInfo"}
            }
        },
        "Meta": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "limit": {"type": "integer"}
            }
        },
        "HealthEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {
                    "type": "object",
                    "properties": {
                        "status": {"type": "string"},
                        "checks": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "SystemInfoEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {
                    "type": "object",
                    "properties": {
                        "name": {"type": "string"},
                        "version": {"type": "string"},
                        "go_version": {"type": "string"},
                        "uptime": {"type": "string"}
                    }
                }
            }
        },
        "WebhookEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {
                    "type": "object",
                    "properties": {
                        "topic": {"type": "string"},
                        "kind": {"type": "string"},
                        "status": {"type": "string"}
                    }
                }
            }
        },
        "TriggerEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {
                    "type": "object",
                    "properties": {
                        "tenant": {"type": "string"},
                        "kind": {"type": "string"},
                        "trigger": {"type": "string"},
                        "status": {"type": "string"}
                    }
                }
            }
        },
        "LedgerEntry": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "tenant": {"type": "string"},
                "idempotency_key": {"type": "string"},
                "kind": {"type": "string"},
                "status": {"type": "string"},
                "attempt_count": {"type": "integer"},
                "last_error": {"type": "string"},
                "error_class": {"type": "string"},
                "needs_review": {"type": "boolean"},
                "external_ref": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "started_at": {"type": "string", "format": "date-time"},
                "completed_at": {"type": "string", "format": "date-time"}
            }
        },
        "LedgerList": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {"type": "array", "items": {"$ref": "#/definitions/LedgerEntry"}},
                "meta": {"$ref": "#/definitions/Meta"}
            }
        },
        "Job": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "tenant": {"type": "string"},
                "kind": {"type": "string"},
                "trigger": {"type": "string"},
                "status": {"type": "string"},
                "error": {"type": "string"},
                "started_at": {"type": "string", "format": "date-time"},
                "completed_at": {"type": "string", "format": "date-time"},
                "succeeded": {"type": "integer"},
                "skipped": {"type": "integer"},
                "failed": {"type": "integer"}
            }
        },
        "JobList": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {"type": "array", "items": {"$ref": "#/definitions/Job"}},
                "meta": {"$ref": "#/definitions/Meta"}
            }
        },
        "LoopList": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "tenant": {"type": "string"},
                            "kind": {"type": "string"},
                            "interval": {"type": "integer", "description": "nanoseconds"},
                            "running": {"type": "boolean"}
                        }
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "storesync ops API",
	Description:      "Health, ledger, job history and manual triggers for the Shopify to Unleashed sync.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
