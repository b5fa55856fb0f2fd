package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/tasks": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Tasks"],
                "summary": "List tasks",
                "description": "List the caller's tasks, most recently edited first",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Set to 1 to include a summary", "name": "debug", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/TaskListResponse"}},
                    "400": {"description": "User email not found", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Backend failure", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Tasks"],
                "summary": "Create task",
                "description": "Create a task owned by the caller. Missing fields take their defaults.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Task", "name": "task", "in": "body", "required": true, "schema": {"$ref": "#/definitions/NewTask"}}
                ],
                "responses": {
                    "200": {"description": "Created", "schema": {"$ref": "#/definitions/TaskResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Backend failure", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/tasks/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Tasks"],
                "summary": "Get task",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Task ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/TaskResponse"}},
                    "404": {"description": "Task not found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["Tasks"],
                "summary": "Update task",
                "description": "Apply any subset of the mutable task fields",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Task ID", "name": "id", "in": "path", "required": true},
                    {"description": "Fields to change", "name": "patch", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TaskPatch"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/TaskResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Task not found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Tasks"],
                "summary": "Archive task",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Task ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SuccessResponse"}},
                    "404": {"description": "Task not found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/ai-edit-tasks": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Assist"],
                "summary": "Edit tasks with a language model",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Tasks and instruction", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EditTasksRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/EditTasksResponse"}},
                    "400": {"description": "No tasks or no prompt", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Model failure or unparseable reply", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/parse-image": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Assist"],
                "summary": "Extract tasks from an image",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Image data URL and instructions", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ParseImageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ParseImageResponse"}},
                    "400": {"description": "Missing or invalid image", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Model failure or unparseable reply", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/version": {
            "get": {
                "tags": ["Meta"],
                "summary": "Deployed build",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/VersionResponse"}}
                }
            }
        }
    },
    "definitions": {
        "TodoItem": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "text": {"type": "string"},
                "completed": {"type": "boolean"}
            }
        },
        "Task": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "dueDate": {"type": "string", "example": "2025-03-12"},
                "dateCreated": {"type": "string", "format": "date-time"},
                "status": {"type": "string", "enum": ["Reminders", "Long Term Deadlines", "To Do", "Doing Today", "Doing Tomorrow", "Archived"]},
                "weekday": {"type": "string", "enum": ["No Weekdays", "Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"]},
                "daysUntilDue": {"type": "integer"},
                "todoItems": {"type": "array", "items": {"$ref": "#/definitions/TodoItem"}},
                "comments": {"type": "array", "items": {"type": "string"}}
            }
        },
        "NewTask": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "dueDate": {"type": "string", "example": "2025-03-12"},
                "status": {"type": "string"},
                "weekday": {"type": "string"},
                "todoItems": {"type": "array", "items": {"$ref": "#/definitions/TodoItem"}},
                "comments": {"type": "array", "items": {"type": "string"}}
            }
        },
        "TaskPatch": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "dueDate": {"type": "string", "x-nullable": true},
                "status": {"type": "string"},
                "weekday": {"type": "string"},
                "todoItems": {"type": "array", "items": {"$ref": "#/definitions/TodoItem"}},
                "comments": {"type": "array", "items": {"type": "string"}}
            }
        },
        "TaskListResponse": {
            "type": "object",
            "properties": {
                "tasks": {"type": "array", "items": {"$ref": "#/definitions/Task"}},
                "success": {"type": "boolean"},
                "debug": {"type": "object"}
            }
        },
        "TaskResponse": {
            "type": "object",
            "properties": {
                "task": {"$ref": "#/definitions/Task"},
                "success": {"type": "boolean"}
            }
        },
        "SuccessResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"}
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "raw": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "EditTasksRequest": {
            "type": "object",
            "properties": {
                "tasks": {"type": "array", "items": {"$ref": "#/definitions/Task"}},
                "prompt": {"type": "string"}
            }
        },
        "EditTasksResponse": {
            "type": "object",
            "properties": {
                "editedTasks": {"type": "array", "items": {"type": "object"}}
            }
        },
        "ParseImageRequest": {
            "type": "object",
            "properties": {
                "image": {"type": "string", "example": "data:image/png;base64,..."},
                "instructions": {"type": "string"}
            }
        },
        "ParseImageResponse": {
            "type": "object",
            "properties": {
                "tasks": {"type": "array", "items": {"type": "object"}},
                "raw": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "VersionResponse": {
            "type": "object",
            "properties": {
                "sha": {"type": "string"},
                "msg": {"type": "string"},
                "branch": {"type": "string"},
                "ts": {"type": "string", "format": "date-time"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Type 'Bearer' followed by a space and a Firebase ID token"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{"http"},
	Title:            "Planner API",
	Description:      "Personal task planner backed by Notion or PostgreSQL, with AI-assisted editing and image intake",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
