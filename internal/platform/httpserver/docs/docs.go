// Package docs registers the OpenAPI document served under /swagger/.
package docs

import "github.com/swaggo/swag"

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
    "paths": {
        "/api/v1/polls": {
            "get": {
                "produces": ["application/json"],
                "tags": ["polls"],
                "summary": "List polls",
                "parameters": [
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ListPollsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["polls"],
                "summary": "Create a poll",
                "parameters": [
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/TallyResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/polls/{poll_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["polls"],
                "summary": "Get a poll tally",
                "parameters": [
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "poll_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/TallyResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["polls"],
                "summary": "Edit poll header and options",
                "parameters": [
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "poll_id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdatePollRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/TallyResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["polls"],
                "summary": "Delete a poll",
                "parameters": [
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "poll_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/DeletePollResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/polls/{poll_id}/close": {
            "post": {
                "produces": ["application/json"],
                "tags": ["polls"],
                "summary": "Close a poll",
                "parameters": [
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "poll_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/TallyResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/polls/{poll_id}/cast": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["polls"],
                "summary": "Cast or replace the caller's ballot",
                "parameters": [
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "poll_id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CastVoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/TallyResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/polls/{poll_id}/options": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["polls"],
                "summary": "Add an option",
                "parameters": [
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "poll_id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddOptionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/OptionResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "CreatePollRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "anonymous": {"type": "boolean"},
                "multiple_choice": {"type": "boolean"},
                "allow_add_option": {"type": "boolean"},
                "options": {"type": "array", "items": {"type": "string"}},
                "deadline": {"type": "string", "format": "date-time"}
            }
        },
        "UpdatePollRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "deadline": {"type": "string", "format": "date-time"},
                "options": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "option_id": {"type": "string"},
                            "text": {"type": "string"},
                            "display_order": {"type": "integer"}
                        }
                    }
                },
                "deleted_option_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "CastVoteRequest": {
            "type": "object",
            "properties": {
                "option_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "AddOptionRequest": {
            "type": "object",
            "properties": {
                "text": {"type": "string"}
            }
        },
        "OptionResponse": {
            "type": "object",
            "properties": {
                "option_id": {"type": "string"},
                "poll_id": {"type": "string"},
                "text": {"type": "string"},
                "display_order": {"type": "integer"},
                "added_by": {"type": "string"}
            }
        },
        "DeletePollResponse": {
            "type": "object",
            "properties": {
                "poll_id": {"type": "string"},
                "deleted": {"type": "boolean"}
            }
        },
        "TallyResponse": {
            "type": "object",
            "properties": {
                "poll_id": {"type": "string"},
                "title": {"type": "string"},
                "status": {"type": "string"},
                "expired": {"type": "boolean"},
                "deadline": {"type": "string", "format": "date-time"},
                "options": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "option_id": {"type": "string"},
                            "text": {"type": "string"},
                            "display_order": {"type": "integer"},
                            "vote_count": {"type": "integer"}
                        }
                    }
                },
                "total_votes": {"type": "integer"},
                "participants": {"type": "integer"},
                "active_members": {"type": "integer"},
                "participation_rate": {"type": "number"},
                "my_option_ids": {"type": "array", "items": {"type": "string"}},
                "has_voted": {"type": "boolean"}
            }
        },
        "ListPollsResponse": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "size": {"type": "integer"},
                "total": {"type": "integer"},
                "items": {"type": "array", "items": {"type": "object"}}
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
	Title:            "pollhub API",
	Description:      "Member polls: create, vote, tally and close.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
