package api

import "net/http"

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the agent's routes.
// Security requirements appear only when a token is configured.
func buildOpenAPIDoc(version string, authRequired bool) map[string]any {
	var security []any
	if authRequired {
		security = []any{
			map[string]any{"BearerAuth": []string{}},
			map[string]any{"TokenHeader": []string{}},
		}
	}

	textResponse := func(desc string) map[string]any {
		return map[string]any{
			"description": desc,
			"content": map[string]any{
				"text/plain": map[string]any{"schema": map[string]any{"type": "string"}},
			},
		}
	}

	printOp := map[string]any{
		"operationId": "print",
		"summary":     "Send a raw TSPL document to the configured printer",
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{
						"type":     "object",
						"required": []string{"tspl"},
						"properties": map[string]any{
							"tspl":      map[string]any{"type": "string"},
							"client_ip": map[string]any{"type": "string"},
						},
					},
				},
			},
		},
		"responses": map[string]any{
			"200": textResponse("Sent to printer"),
			"400": textResponse("Missing or non-string tspl field"),
			"401": map[string]any{"description": "Unauthorized"},
			"413": textResponse("Payload too large"),
			"429": textResponse("Rate limited"),
			"500": textResponse("Print failed"),
		},
	}
	eventsOp := map[string]any{
		"operationId": "events",
		"summary":     "Stream print lifecycle events (Server-Sent Events)",
		"responses": map[string]any{
			"200": map[string]any{"description": "text/event-stream"},
			"401": map[string]any{"description": "Unauthorized"},
		},
	}
	if security != nil {
		printOp["security"] = security
		eventsOp["security"] = security
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "TSPL Print Agent",
			"version": version,
		},
		"paths": map[string]any{
			"/health": map[string]any{
				"get": map[string]any{
					"operationId": "health",
					"summary":     "Agent status and network discovery",
					"responses":   map[string]any{"200": map[string]any{"description": "OK"}},
				},
			},
			"/whoami": map[string]any{
				"get": map[string]any{
					"operationId": "whoami",
					"summary":     "Local IPv4 and interfaces",
					"responses":   map[string]any{"200": map[string]any{"description": "OK"}},
				},
			},
			"/print":  map[string]any{"post": printOp},
			"/events": map[string]any{"get": eventsOp},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
				"TokenHeader": map[string]any{
					"type": "apiKey",
					"in":   "header",
					"name": "X-API-Token",
				},
			},
		},
	}
}

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.Version, s.config.Token != ""))
}
