// Package docs holds the OpenAPI description served at /swagger.
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
        "/payments/stkpush": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Prompt the subscriber's phone for the registration payment",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "Initiate STK Push",
                "parameters": [
                    {
                        "description": "STK push request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.pushRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.PushResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments/confirm": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Verify an M-Pesa transaction code and mark the caller's account as paid",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "Confirm Payment",
                "parameters": [
                    {
                        "description": "Confirmation request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.confirmRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ConfirmResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments/requests/{checkoutRequestId}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "Get Payment Request",
                "parameters": [
                    {"type": "string", "description": "Checkout request ID", "name": "checkoutRequestId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PaymentRequest"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments/requests/{checkoutRequestId}/query": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Poll M-Pesa for a push whose callback has not arrived",
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "Query Payment Status",
                "parameters": [
                    {"type": "string", "description": "Checkout request ID", "name": "checkoutRequestId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PaymentRequest"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments/instructions": {
            "get": {
                "description": "How to pay the paybill directly and confirm with the SMS code",
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "Paybill Instructions",
                "parameters": [
                    {"type": "string", "description": "Account reference", "name": "reference", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.PaymentInstructions"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/mpesa/callback/{token}": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Callbacks"],
                "summary": "M-Pesa STK Callback",
                "parameters": [
                    {"type": "string", "description": "Callback token", "name": "token", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.callbackAck"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.callbackAck": {
            "type": "object",
            "properties": {
                "ResultCode": {"type": "integer"},
                "ResultDesc": {"type": "string"}
            }
        },
        "handlers.confirmRequest": {
            "type": "object",
            "required": ["phoneNumber", "transactionCode"],
            "properties": {
                "phoneNumber": {"type": "string"},
                "transactionCode": {"type": "string"}
            }
        },
        "handlers.pushRequest": {
            "type": "object",
            "required": ["accountReference", "phoneNumber"],
            "properties": {
                "accountReference": {"type": "string", "maxLength": 12},
                "amount": {"type": "number"},
                "phoneNumber": {"type": "string"}
            }
        },
        "models.ConfirmedPayment": {
            "type": "object",
            "properties": {
                "amount": {"type": "integer"},
                "confirmedAt": {"type": "string"},
                "linkedAccountId": {"type": "string"},
                "phoneNumber": {"type": "string"},
                "source": {"type": "string"},
                "transactionCode": {"type": "string"}
            }
        },
        "models.PaymentRequest": {
            "type": "object",
            "properties": {
                "accountId": {"type": "string"},
                "accountReference": {"type": "string"},
                "amount": {"type": "integer"},
                "checkoutRequestId": {"type": "string"},
                "createdAt": {"type": "string"},
                "id": {"type": "string"},
                "merchantRequestId": {"type": "string"},
                "phoneNumber": {"type": "string"},
                "receiptNumber": {"type": "string"},
                "resultCode": {"type": "string"},
                "resultDesc": {"type": "string"},
                "status": {"type": "string", "enum": ["Pending", "Completed", "Failed", "Expired"]},
                "updatedAt": {"type": "string"}
            }
        },
        "services.ConfirmResult": {
            "type": "object",
            "properties": {
                "alreadyConfirmed": {"type": "boolean"},
                "payment": {"$ref": "#/definitions/models.ConfirmedPayment"},
                "verified": {"type": "boolean"}
            }
        },
        "services.ErrorResponse": {
            "type": "object",
            "properties": {
                "details": {"type": "object", "additionalProperties": {"type": "string"}},
                "error": {"type": "string"}
            }
        },
        "services.PaymentInstructions": {
            "type": "object",
            "properties": {
                "accountReference": {"type": "string"},
                "amount": {"type": "integer"},
                "paybill": {"type": "string"},
                "qrImage": {"type": "string"},
                "steps": {"type": "array", "items": {"type": "string"}}
            }
        },
        "services.PushResult": {
            "type": "object",
            "properties": {
                "correlationId": {"type": "string"},
                "customerMessage": {"type": "string"},
                "merchantRequestId": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "NNECFA Payments API",
	Description:      "M-Pesa registration payment confirmation",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
