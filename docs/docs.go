// docs/docs.go

// Package docs registers the monitor API's OpenAPI document with swag. The
// template follows the handler annotations and is maintained by hand.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/events": {
            "get": {
                "description": "List session events from the journal, or from the in-memory history when the journal is disabled",
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "List session events",
                "parameters": [
                    {"type": "integer", "description": "Session id", "name": "session", "in": "query"},
                    {"type": "string", "description": "Port path", "name": "path", "in": "query"},
                    {"enum": ["SESSION_OPENED", "SESSION_CONFIGURED", "SESSION_CLOSED"], "type": "string", "description": "Event kind", "name": "kind", "in": "query"},
                    {"type": "string", "description": "RFC3339 lower bound", "name": "since", "in": "query"},
                    {"type": "integer", "default": 100, "description": "Maximum number of events", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Events", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "400": {"description": "Invalid filter", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "500": {"description": "Journal query failed", "schema": {"$ref": "#/definitions/utils.APIResponse"}}
                }
            }
        },
        "/api/v1/ports": {
            "get": {
                "description": "Enumerate the ports of the active driver",
                "produces": ["application/json"],
                "tags": ["Ports"],
                "summary": "List ports",
                "responses": {
                    "200": {"description": "Ports", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "500": {"description": "Enumeration failed", "schema": {"$ref": "#/definitions/utils.APIResponse"}}
                }
            }
        },
        "/api/v1/sessions": {
            "get": {
                "description": "List the sessions currently open on the gateway",
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "List sessions",
                "responses": {
                    "200": {"description": "Sessions", "schema": {"$ref": "#/definitions/utils.APIResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "description": "Get gateway status including admission, sessions and journal connectivity",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "Service is healthy", "schema": {"$ref": "#/definitions/handler.HealthResponse"}},
                    "503": {"description": "Service is unhealthy", "schema": {"$ref": "#/definitions/handler.HealthResponse"}}
                }
            }
        },
        "/health/db": {
            "get": {
                "description": "Check journal database connectivity and pool statistics",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Database health check",
                "responses": {
                    "200": {"description": "Database is healthy", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "404": {"description": "Journal is disabled", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "503": {"description": "Database is unhealthy", "schema": {"$ref": "#/definitions/utils.APIResponse"}}
                }
            }
        },
        "/live": {
            "get": {
                "description": "Check if service is alive",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "Service is alive", "schema": {"type": "object", "properties": {"status": {"type": "string"}, "timestamp": {"type": "string"}}}}
                }
            }
        },
        "/ready": {
            "get": {
                "description": "Check if the gateway is ready to accept connections",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Service is ready", "schema": {"type": "object", "properties": {"status": {"type": "string"}, "timestamp": {"type": "string"}}}},
                    "503": {"description": "Service is not ready", "schema": {"type": "object", "properties": {"reason": {"type": "string"}, "status": {"type": "string"}}}}
                }
            }
        }
    },
    "definitions": {
        "handler.CheckResult": {
            "type": "object",
            "properties": {
                "data": {"type": "object", "additionalProperties": true},
                "message": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "handler.HealthResponse": {
            "type": "object",
            "properties": {
                "checks": {"type": "object", "additionalProperties": {"$ref": "#/definitions/handler.CheckResult"}},
                "service": {"type": "string"},
                "status": {"type": "string"},
                "timestamp": {"type": "string"},
                "uptime": {"type": "string"},
                "version": {"type": "string"}
            }
        },
        "utils.APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "details": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "utils.APIResponse": {
            "type": "object",
            "properties": {
                "data": {},
                "error": {"$ref": "#/definitions/utils.APIError"},
                "message": {"type": "string"},
                "request_id": {"type": "string"},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8084",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Serial Gateway Monitor API",
	Description:      "Read-only monitor of the serial gateway: ports, sessions and session events",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
