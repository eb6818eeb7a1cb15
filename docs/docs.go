package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "RetroTrack Backend",
    "description": "API for detecting late shipments in uploaded workbooks and estimating the cost of slow routes",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "UserID": {"type": "apiKey", "in": "header", "name": "X-User-Id"}
  },
  "security": [{"UserID": []}],
  "paths": {
    "/healthz": {
      "get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "ok"}, "503": {"description": "database unavailable"}}}
    },
    "/api/datasets": {
      "get": {"tags": ["datasets"], "summary": "List datasets", "responses": {"200": {"description": "datasets owned by the caller"}}},
      "post": {
        "tags": ["datasets"],
        "summary": "Upload a workbook",
        "consumes": ["multipart/form-data"],
        "parameters": [{"name": "file", "in": "formData", "type": "file", "required": true}],
        "responses": {"201": {"description": "dataset created"}, "400": {"description": "unsupported or unreadable file"}, "413": {"description": "file too large"}}
      }
    },
    "/api/datasets/{id}": {
      "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
      "get": {"tags": ["datasets"], "summary": "Dataset metadata", "responses": {"200": {"description": "dataset"}, "404": {"description": "not found"}}},
      "delete": {"tags": ["datasets"], "summary": "Delete a dataset and its routes", "responses": {"200": {"description": "deleted"}, "404": {"description": "not found"}}}
    },
    "/api/datasets/{id}/rederive": {
      "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
      "post": {"tags": ["datasets"], "summary": "Re-derive routes from the stored parse", "responses": {"200": {"description": "routes inserted"}}}
    },
    "/api/datasets/{id}/optimize": {
      "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
      "post": {"tags": ["reports"], "summary": "Fill optimized times", "responses": {"200": {"description": "fill pass result"}}}
    },
    "/api/datasets/{id}/inefficient": {
      "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
      "get": {"tags": ["reports"], "summary": "Inefficient routes", "responses": {"200": {"description": "delay table"}}}
    },
    "/api/datasets/{id}/cost-analysis": {
      "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
      "get": {"tags": ["reports"], "summary": "Cost analysis", "responses": {"200": {"description": "cost table"}}}
    },
    "/api/datasets/{id}/summary": {
      "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
      "get": {"tags": ["reports"], "summary": "Dataset summary", "responses": {"200": {"description": "summary report"}}}
    }
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
