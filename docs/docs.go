// Package docs holds the generated OpenAPI definition served by the Swagger
// UI route. Regenerate with:
//
//	swag init -g cmd/server/main.go -o docs
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
        "/waitlist-submit": {
            "post": {
                "description": "Validates a signup, enforces rate limits, deduplicates retried\nsubmissions, and forwards the entry to the intake spreadsheet.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Waitlist"],
                "summary": "Join the waitlist",
                "operationId": "submitWaitlist",
                "parameters": [
                    {
                        "description": "Signup payload",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/validation.SubmissionRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Handled; check success flag",
                        "schema": {"$ref": "#/definitions/handlers.SubmitResponse"}
                    },
                    "400": {
                        "description": "Malformed or invalid body",
                        "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                    },
                    "403": {
                        "description": "Origin rejected",
                        "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                    },
                    "413": {
                        "description": "Payload too large",
                        "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                    },
                    "429": {
                        "description": "Rate limited",
                        "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                    },
                    "500": {
                        "description": "Delivery failed",
                        "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                    },
                    "503": {
                        "description": "Webhook not configured",
                        "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                    }
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": false},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "bad_request"},
                "field": {"type": "string", "example": "emailAddress"},
                "message": {"type": "string", "example": "Please enter a valid email"}
            }
        },
        "handlers.SubmitResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true},
                "message": {"type": "string", "example": "Form submitted successfully"}
            }
        },
        "validation.SubmissionRequest": {
            "type": "object",
            "properties": {
                "fullName": {"type": "string", "example": "Asha Rao"},
                "emailAddress": {"type": "string", "example": "asha@example.com"},
                "phoneNumber": {"type": "string", "example": "9876543210"},
                "city": {"type": "string", "example": "Mumbai"},
                "userType": {"type": "string", "example": "customer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Waitlist Intake API",
	Description:      "Submission intake service for the waitlist signup form.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
