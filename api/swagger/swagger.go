package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Timetable Engine API",
        "description": "Constraint-based timetable generation, conflict detection, repair and interactive editing",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {
            "name": "Timetables",
            "description": "Generation, detection, repair and versions"
        },
        {
            "name": "Editor",
            "description": "Incremental editing sessions"
        },
        {
            "name": "Exports",
            "description": "Asynchronous timetable exports"
        },
        {
            "name": "Operations",
            "description": "Runtime metrics"
        }
    ],
    "paths": {
        "/timetables/generate": {
            "post": {
                "tags": [
                    "Timetables"
                ],
                "summary": "Generate a timetable proposal",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/GenerateTimetableRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "429": {
                        "description": "Rate limited",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/timetables/detect": {
            "post": {
                "tags": [
                    "Timetables"
                ],
                "summary": "Detect conflicts in a set of assignments",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/DetectConflictsRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/timetables/repair": {
            "post": {
                "tags": [
                    "Timetables"
                ],
                "summary": "Repair conflicting assignments",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RepairTimetableRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "429": {
                        "description": "Rate limited",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/timetables/save": {
            "post": {
                "tags": [
                    "Timetables"
                ],
                "summary": "Persist a proposal as a new version",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SaveTimetableRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/timetables": {
            "get": {
                "tags": [
                    "Timetables"
                ],
                "summary": "List timetable versions",
                "parameters": [
                    {
                        "name": "termId",
                        "in": "query",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "programId",
                        "in": "query",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/timetables/{id}/slots": {
            "get": {
                "tags": [
                    "Timetables"
                ],
                "summary": "Load the assignments of a version",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/timetables/{id}/publish": {
            "post": {
                "tags": [
                    "Timetables"
                ],
                "summary": "Publish a draft version",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/timetables/{id}": {
            "delete": {
                "tags": [
                    "Timetables"
                ],
                "summary": "Delete a draft version",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/timetables/{id}/exports": {
            "post": {
                "tags": [
                    "Exports"
                ],
                "summary": "Queue an export of a version",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateExportRequest"
                        }
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Accepted",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/exports/{jobId}": {
            "get": {
                "tags": [
                    "Exports"
                ],
                "summary": "Get export job status",
                "parameters": [
                    {
                        "name": "jobId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/exports/download/{token}": {
            "get": {
                "tags": [
                    "Exports"
                ],
                "summary": "Download a finished export",
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "produces": [
                    "text/csv",
                    "application/pdf",
                    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
                ],
                "responses": {
                    "200": {
                        "description": "File"
                    },
                    "403": {
                        "description": "Invalid or expired token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/editor/sessions": {
            "post": {
                "tags": [
                    "Editor"
                ],
                "summary": "Open an editing session",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/OpenSessionRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/editor/sessions/{id}": {
            "get": {
                "tags": [
                    "Editor"
                ],
                "summary": "Get session state",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Editor"
                ],
                "summary": "Close a session",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/editor/sessions/{id}/move": {
            "post": {
                "tags": [
                    "Editor"
                ],
                "summary": "Move an assignment to another slot",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/MoveAssignmentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/editor/sessions/{id}/swap": {
            "post": {
                "tags": [
                    "Editor"
                ],
                "summary": "Swap the room and slot of two assignments",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SwapAssignmentsRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/editor/sessions/{id}/insert": {
            "post": {
                "tags": [
                    "Editor"
                ],
                "summary": "Insert an assignment",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AssignmentPayload"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/editor/sessions/{id}/update": {
            "post": {
                "tags": [
                    "Editor"
                ],
                "summary": "Replace an assignment",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AssignmentPayload"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/editor/sessions/{id}/remove": {
            "post": {
                "tags": [
                    "Editor"
                ],
                "summary": "Remove an assignment",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RemoveAssignmentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/editor/sessions/{id}/undo": {
            "post": {
                "tags": [
                    "Editor"
                ],
                "summary": "Undo the last edit",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Nothing to undo",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/editor/sessions/{id}/repair": {
            "post": {
                "tags": [
                    "Editor"
                ],
                "summary": "Repair the session in place",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "429": {
                        "description": "Rate limited",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/editor/sessions/{id}/commit": {
            "post": {
                "tags": [
                    "Editor"
                ],
                "summary": "Commit the session as a new version",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/CommitSessionRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": [
                    "Operations"
                ],
                "summary": "Runtime metrics snapshot",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "SlotKey": {
            "type": "object",
            "properties": {
                "day": {
                    "type": "integer"
                },
                "period": {
                    "type": "integer"
                }
            }
        },
        "TimeSlot": {
            "type": "object",
            "properties": {
                "day": {
                    "type": "integer"
                },
                "period": {
                    "type": "integer"
                },
                "start": {
                    "type": "string"
                },
                "end": {
                    "type": "string"
                }
            }
        },
        "Course": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "subject": {
                    "type": "string"
                },
                "weekly_hours": {
                    "type": "integer"
                },
                "expected_students": {
                    "type": "integer"
                },
                "type": {
                    "type": "string",
                    "enum": [
                        "core",
                        "practical",
                        "lab",
                        "elective"
                    ]
                },
                "eligible_faculty": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "required_features": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "Faculty": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "subjects": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "max_weekly_hours": {
                    "type": "integer"
                },
                "committed_hours": {
                    "type": "integer"
                },
                "unavailable": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/SlotKey"
                    }
                }
            }
        },
        "Room": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "capacity": {
                    "type": "integer"
                },
                "features": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "TimetableProblem": {
            "type": "object",
            "properties": {
                "courses": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Course"
                    }
                },
                "faculty": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Faculty"
                    }
                },
                "rooms": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Room"
                    }
                },
                "slots": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/TimeSlot"
                    }
                }
            }
        },
        "Assignment": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "course_id": {
                    "type": "string"
                },
                "faculty_id": {
                    "type": "string"
                },
                "room_id": {
                    "type": "string"
                },
                "slot": {
                    "$ref": "#/definitions/SlotKey"
                },
                "notes": {
                    "type": "string"
                }
            }
        },
        "GenerationOptions": {
            "type": "object",
            "properties": {
                "prioritizeCore": {
                    "type": "boolean"
                },
                "respectFacultyPreference": {
                    "type": "boolean"
                },
                "optimizeRoomUtilization": {
                    "type": "boolean"
                },
                "maxBacktrackAttempts": {
                    "type": "integer"
                },
                "maxRepairIterations": {
                    "type": "integer"
                },
                "randomSeed": {
                    "type": "integer"
                },
                "deadline": {
                    "type": "string",
                    "format": "date-time"
                },
                "weights": {
                    "type": "object",
                    "properties": {
                        "workload": {
                            "type": "number"
                        },
                        "utilization": {
                            "type": "number"
                        },
                        "preference": {
                            "type": "number"
                        },
                        "daySpread": {
                            "type": "number"
                        }
                    }
                },
                "priorityWeights": {
                    "type": "object"
                },
                "preferences": {
                    "type": "object"
                }
            }
        },
        "GenerateTimetableRequest": {
            "type": "object",
            "properties": {
                "termId": {
                    "type": "string"
                },
                "programId": {
                    "type": "string"
                },
                "problem": {
                    "$ref": "#/definitions/TimetableProblem"
                },
                "options": {
                    "$ref": "#/definitions/GenerationOptions"
                }
            }
        },
        "DetectConflictsRequest": {
            "type": "object",
            "properties": {
                "problem": {
                    "$ref": "#/definitions/TimetableProblem"
                },
                "assignments": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Assignment"
                    }
                }
            }
        },
        "RepairTimetableRequest": {
            "type": "object",
            "properties": {
                "problem": {
                    "$ref": "#/definitions/TimetableProblem"
                },
                "assignments": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Assignment"
                    }
                },
                "options": {
                    "$ref": "#/definitions/GenerationOptions"
                }
            }
        },
        "SaveTimetableRequest": {
            "type": "object",
            "properties": {
                "proposalId": {
                    "type": "string"
                },
                "publish": {
                    "type": "boolean"
                }
            }
        },
        "OpenSessionRequest": {
            "type": "object",
            "properties": {
                "proposalId": {
                    "type": "string"
                },
                "versionId": {
                    "type": "string"
                },
                "termId": {
                    "type": "string"
                },
                "programId": {
                    "type": "string"
                },
                "problem": {
                    "$ref": "#/definitions/TimetableProblem"
                },
                "assignments": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Assignment"
                    }
                },
                "options": {
                    "$ref": "#/definitions/GenerationOptions"
                }
            }
        },
        "MoveAssignmentRequest": {
            "type": "object",
            "properties": {
                "assignmentId": {
                    "type": "string"
                },
                "slot": {
                    "$ref": "#/definitions/SlotKey"
                }
            }
        },
        "SwapAssignmentsRequest": {
            "type": "object",
            "properties": {
                "first": {
                    "type": "string"
                },
                "second": {
                    "type": "string"
                }
            }
        },
        "AssignmentPayload": {
            "type": "object",
            "properties": {
                "assignment": {
                    "$ref": "#/definitions/Assignment"
                }
            }
        },
        "RemoveAssignmentRequest": {
            "type": "object",
            "properties": {
                "assignmentId": {
                    "type": "string"
                }
            }
        },
        "CommitSessionRequest": {
            "type": "object",
            "properties": {
                "publish": {
                    "type": "boolean"
                }
            }
        },
        "CreateExportRequest": {
            "type": "object",
            "properties": {
                "format": {
                    "type": "string",
                    "enum": [
                        "csv",
                        "pdf",
                        "xlsx",
                        "excel"
                    ]
                },
                "view": {
                    "type": "string",
                    "enum": [
                        "list",
                        "grid"
                    ]
                },
                "facultyId": {
                    "type": "string"
                },
                "roomId": {
                    "type": "string"
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
