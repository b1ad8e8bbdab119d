package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Skill Lab API",
        "description": "Attendance, graded assessments and cross-sectional reporting for the Skill Lab training program",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Assessments", "description": "Assessment record lifecycle and export workflow"},
        {"name": "Attendance", "description": "Daily attendance"},
        {"name": "Reports", "description": "Pivot reports and spreadsheet exports"},
        {"name": "Roster", "description": "Read-only student and group roster"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and issue an access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assessments": {
            "get": {
                "tags": ["Assessments"],
                "summary": "List assessment records",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "year", "in": "query", "type": "integer"},
                    {"name": "groupId", "in": "query", "type": "string"},
                    {"name": "unit", "in": "query", "type": "string"},
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "trainerId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Assessments"],
                "summary": "Create an assessment record",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRecordRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error"}
                }
            }
        },
        "/assessments/occasions": {
            "get": {
                "tags": ["Assessments"],
                "summary": "Aggregate lock state per assessment occasion",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "groupId", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assessments/export": {
            "post": {
                "tags": ["Assessments"],
                "summary": "Export selected records to the admin office",
                "description": "Each record is handled independently; already exported records count as failures in the returned tally.",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkRequest"}}
                ],
                "responses": {
                    "200": {"description": "Tally", "schema": {"$ref": "#/definitions/BulkResult"}}
                }
            }
        },
        "/assessments/bulk-delete": {
            "post": {
                "tags": ["Assessments"],
                "summary": "Delete a batch of assessment records",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkRequest"}}
                ],
                "responses": {
                    "200": {"description": "Tally", "schema": {"$ref": "#/definitions/BulkResult"}}
                }
            }
        },
        "/assessments/{id}": {
            "get": {
                "tags": ["Assessments"],
                "summary": "Get one assessment record",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Assessments"],
                "summary": "Delete an assessment record",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Record already exported"}
                }
            }
        },
        "/assessments/{id}/score": {
            "patch": {
                "tags": ["Assessments"],
                "summary": "Edit a record score",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EditScoreRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Record already exported"}
                }
            }
        },
        "/assessments/{id}/admin-export": {
            "post": {
                "tags": ["Assessments"],
                "summary": "Lock a single record on behalf of the admin office",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Admin role required"},
                    "409": {"description": "Record already exported"}
                }
            }
        },
        "/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance records",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "year", "in": "query", "type": "integer"},
                    {"name": "groupId", "in": "query", "type": "string"},
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Attendance"],
                "summary": "Record attendance for one student and date",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordAttendanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/view/{view}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Build a pivot report",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "view", "in": "path", "type": "string", "required": true, "enum": ["summary", "detailed", "weekly"]},
                    {"name": "year", "in": "query", "type": "integer"},
                    {"name": "groupId", "in": "query", "type": "string"},
                    {"name": "unit", "in": "query", "type": "string"},
                    {"name": "trainerId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/export": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue an asynchronous report export",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateReportJobRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/export/jobs/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Export job status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/download/{token}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a rendered export via signed token",
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Roster"],
                "summary": "List students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "groupId", "in": "query", "type": "string"},
                    {"name": "year", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups": {
            "get": {
                "tags": ["Roster"],
                "summary": "List groups",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "year", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateRecordRequest": {
            "type": "object",
            "required": ["student_id", "group_id", "year", "assessment_name", "assessment_type", "max_score", "date"],
            "properties": {
                "student_id": {"type": "string"},
                "group_id": {"type": "string"},
                "trainer_id": {"type": "string"},
                "year": {"type": "integer"},
                "assessment_name": {"type": "string"},
                "assessment_type": {"type": "string", "enum": ["exam", "quiz", "assignment", "project", "presentation"]},
                "score": {"type": "number"},
                "max_score": {"type": "number"},
                "date": {"type": "string"},
                "unit": {"type": "string"},
                "week": {"type": "integer"},
                "is_excused": {"type": "boolean"}
            }
        },
        "EditScoreRequest": {
            "type": "object",
            "required": ["score"],
            "properties": {
                "score": {"type": "number"}
            }
        },
        "BulkRequest": {
            "type": "object",
            "required": ["record_ids"],
            "properties": {
                "record_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "BulkResult": {
            "type": "object",
            "properties": {
                "success": {"type": "integer"},
                "failed": {"type": "integer"},
                "failures": {"type": "array", "items": {"$ref": "#/definitions/BulkFailure"}}
            }
        },
        "BulkFailure": {
            "type": "object",
            "properties": {
                "record_id": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "RecordAttendanceRequest": {
            "type": "object",
            "required": ["student_id", "group_id", "year", "date", "status"],
            "properties": {
                "student_id": {"type": "string"},
                "group_id": {"type": "string"},
                "year": {"type": "integer"},
                "date": {"type": "string"},
                "status": {"type": "string", "enum": ["present", "absent", "late", "excused"]},
                "unit": {"type": "string"}
            }
        },
        "CreateReportJobRequest": {
            "type": "object",
            "required": ["view", "format"],
            "properties": {
                "view": {"type": "string", "enum": ["summary", "detailed", "weekly"]},
                "filter": {"type": "object"},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
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
