// Package docs registers the OpenAPI document of the stats API with swag so
// gin-swagger can serve it under /swagger. Keep it in sync with the godoc
// annotations on the handlers.
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
        "/stats": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns the number of known guilds, users and usage events.",
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Aggregate counts",
                "operationId": "getAggregateStats",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.AggregateCounts"}},
                    "401": {"description": "Missing or invalid API key", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/stats/top": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns users ordered by total conversions, highest first.",
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Leaderboard",
                "operationId": "getTopUsers",
                "parameters": [
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 10, "description": "Rows to return", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.TopUsersResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/stats/recent": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns the most recent usage events with user and guild names, newest first.",
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Recent activity",
                "operationId": "getRecentUsage",
                "parameters": [
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 10, "description": "Rows to return", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RecentUsageResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "User summary",
                "operationId": "getUserStats",
                "parameters": [
                    {"type": "integer", "description": "Discord user id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.UserStats"}},
                    "400": {"description": "Invalid id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Unknown user", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/guilds/{id}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Guild summary",
                "operationId": "getGuildStats",
                "parameters": [
                    {"type": "integer", "description": "Discord guild id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.GuildStats"}},
                    "400": {"description": "Invalid id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Unknown guild", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.AggregateCounts": {
            "type": "object",
            "properties": {
                "guilds": {"type": "integer"},
                "users": {"type": "integer"},
                "events": {"type": "integer"},
                "location": {"type": "string"}
            }
        },
        "domain.TopUser": {
            "type": "object",
            "properties": {
                "user_id": {"type": "integer"},
                "username": {"type": "string"},
                "display_name": {"type": "string"},
                "total_conversions": {"type": "integer"}
            }
        },
        "domain.RecentUsage": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "user_id": {"type": "integer"},
                "username": {"type": "string"},
                "guild_id": {"type": "integer"},
                "guild_name": {"type": "string"},
                "file_size": {"type": "integer"},
                "conversion_type": {"type": "string", "enum": ["image_to_gif", "gif_passthrough"]},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "domain.UserStats": {
            "type": "object",
            "properties": {
                "user_id": {"type": "integer"},
                "username": {"type": "string"},
                "display_name": {"type": "string"},
                "total_conversions": {"type": "integer"},
                "conversions_30d": {"type": "integer"},
                "created_at": {"type": "string", "format": "date-time"},
                "last_seen": {"type": "string", "format": "date-time"}
            }
        },
        "domain.GuildStats": {
            "type": "object",
            "properties": {
                "guild_id": {"type": "integer"},
                "guild_name": {"type": "string"},
                "member_count": {"type": "integer"},
                "total_conversions": {"type": "integer"},
                "unique_users": {"type": "integer"},
                "installed_at": {"type": "string", "format": "date-time"},
                "last_seen": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "user not found"}
            }
        },
        "handlers.TopUsersResponse": {
            "type": "object",
            "properties": {
                "users": {"type": "array", "items": {"$ref": "#/definitions/domain.TopUser"}}
            }
        },
        "handlers.RecentUsageResponse": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/domain.RecentUsage"}}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "go-gif-bot stats API",
	Description:      "Read-only usage statistics of the image-to-GIF Discord bot.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
