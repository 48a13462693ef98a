package httpapi

import (
	"net/http"
	"strings"
)

func (h *Handler) swaggerUI(w http.ResponseWriter, r *http.Request) {
	const page = `<!doctype html>
<html lang="ja">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>BirdDex API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/docs/openapi.json',
      dom_id: '#swagger-ui'
    });
  </script>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

func (h *Handler) swaggerSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, openAPISpec(requestBaseURL(r)))
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); forwarded != "" {
		scheme = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}

	host := strings.TrimSpace(r.Host)
	if host == "" {
		host = "localhost:8080"
	}
	return scheme + "://" + host
}

type apiOp struct {
	method   string
	path     string
	id       string
	summary  string
	request  string
	response string
	query    []string
	errors   map[string]string
}

var apiOps = []apiOp{
	{method: "get", path: "/healthz", id: "healthz", summary: "Liveness check", response: "Status"},
	{method: "post", path: "/api/v1/pokedex/capture", id: "recordCapture", summary: "Mint the authoritative capture record", request: "CaptureRequest", response: "PokedexEntry",
		errors: map[string]string{"400": "Invalid request", "500": "Internal server error"}},
	{method: "get", path: "/api/v1/birds/nearby", id: "nearbyBirds", summary: "Generate spawns around a point", query: []string{"lat", "lng"}, response: "SpawnList",
		errors: map[string]string{"400": "Missing or invalid coordinates"}},
	{method: "get", path: "/api/v1/ebird/recent", id: "recentObservations", summary: "Recent eBird observations", query: []string{"lat", "lng", "dist", "back"},
		errors: map[string]string{"502": "eBird unavailable"}},
	{method: "get", path: "/api/v1/bird-image", id: "birdImage", summary: "Resolve a bird image", query: []string{"q", "speciesCode"}, response: "ImageResult",
		errors: map[string]string{"400": "q is required"}},
	{method: "get", path: "/api/v1/bird-description", id: "birdDescription", summary: "Wikipedia description (en and ja)", query: []string{"q"}, response: "Description",
		errors: map[string]string{"400": "q is required", "502": "Wikipedia unavailable"}},
	{method: "get", path: "/api/v1/geocode", id: "geocode", summary: "Reverse geocode to state and city", query: []string{"lat", "lng"}, response: "Region",
		errors: map[string]string{"400": "Missing or invalid coordinates", "502": "Nominatim unavailable"}},
	{method: "post", path: "/api/v1/sessions", id: "createSession", summary: "Open or resume a player session", request: "CreateSessionRequest", response: "SessionInfo",
		errors: map[string]string{"400": "Invalid session id"}},
	{method: "delete", path: "/api/v1/sessions/{id}", id: "closeSession", summary: "Close a session"},
	{method: "get", path: "/api/v1/sessions/{id}/ws", id: "relay", summary: "Websocket relay between the host page and the AR frame"},
	{method: "post", path: "/api/v1/sessions/{id}/messages", id: "receiveMessage", summary: "Relay one AR event", request: "ArEvent", response: "ReceiveResult"},
	{method: "get", path: "/api/v1/sessions/{id}/outbox", id: "outbox", summary: "Drain queued messages for the AR frame"},
	{method: "get", path: "/api/v1/sessions/{id}/events", id: "events", summary: "Drain UI events"},
	{method: "post", path: "/api/v1/sessions/{id}/capture", id: "requestCapture", summary: "Host initiated capture", request: "HostCapture", response: "Outcome"},
	{method: "post", path: "/api/v1/sessions/{id}/model", id: "setModel", summary: "Change the AR model"},
	{method: "get", path: "/api/v1/sessions/{id}/battles", id: "battles", summary: "Pending battles"},
	{method: "post", path: "/api/v1/sessions/{id}/battles/{battleId}/victory", id: "battleVictory", summary: "Resolve a battle as won", response: "Outcome"},
	{method: "post", path: "/api/v1/sessions/{id}/battles/{battleId}/cancel", id: "cancelBattle", summary: "Cancel a pending battle"},
	{method: "post", path: "/api/v1/sessions/{id}/battles/{battleId}/fight", id: "fightBattle", summary: "Auto-resolve a battle", response: "Outcome",
		errors: map[string]string{"400": "Fighter not in roster"}},
	{method: "post", path: "/api/v1/sessions/{id}/location", id: "updateLocation", summary: "Report a position fix", request: "Location"},
	{method: "get", path: "/api/v1/sessions/{id}/pokedex", id: "sessionPokedex", summary: "Pokedex entries"},
	{method: "get", path: "/api/v1/sessions/{id}/level", id: "level", summary: "Level and XP progress"},
	{method: "get", path: "/api/v1/sessions/{id}/badges", id: "badges", summary: "Unlocked badges"},
	{method: "get", path: "/api/v1/sessions/{id}/spawns", id: "spawns", summary: "Live spawns"},
	{method: "post", path: "/api/v1/sessions/{id}/export", id: "export", summary: "Upload a pokedex snapshot",
		errors: map[string]string{"503": "Export not configured"}},
}

func openAPISpec(serverURL string) map[string]any {
	paths := map[string]any{}
	for _, op := range apiOps {
		item, ok := paths[op.path].(map[string]any)
		if !ok {
			item = map[string]any{}
			paths[op.path] = item
		}
		item[op.method] = op.document()
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":       "BirdDex API",
			"description": "AR bird capture backend",
			"version":     "1.0.0",
		},
		"servers":    []map[string]string{{"url": serverURL}},
		"paths":      paths,
		"components": map[string]any{"schemas": schemas},
	}
}

func (op apiOp) document() map[string]any {
	doc := map[string]any{
		"summary":     op.summary,
		"operationId": op.id,
	}

	var params []map[string]any
	for _, seg := range strings.Split(op.path, "/") {
		if strings.HasPrefix(seg, "{") {
			params = append(params, map[string]any{
				"name": strings.Trim(seg, "{}"), "in": "path", "required": true,
				"schema": map[string]string{"type": "string"},
			})
		}
	}
	for _, name := range op.query {
		params = append(params, map[string]any{
			"name": name, "in": "query",
			"schema": map[string]string{"type": "string"},
		})
	}
	if len(params) > 0 {
		doc["parameters"] = params
	}

	if op.request != "" {
		doc["requestBody"] = map[string]any{
			"required": true,
			"content":  jsonContent(op.request),
		}
	}

	ok := map[string]any{"description": "OK"}
	if op.response != "" {
		ok["content"] = jsonContent(op.response)
	}
	responses := map[string]any{"200": ok}
	if strings.Contains(op.path, "{id}") {
		responses["404"] = map[string]any{"description": "Session or battle not found"}
	}
	for code, desc := range op.errors {
		responses[code] = map[string]any{"description": desc}
	}
	doc["responses"] = responses
	return doc
}

func jsonContent(schema string) map[string]any {
	return map[string]any{
		"application/json": map[string]any{
			"schema": map[string]any{"$ref": "#/components/schemas/" + schema},
		},
	}
}

func object(required []string, props map[string]string) map[string]any {
	properties := make(map[string]any, len(props))
	for name, typ := range props {
		properties[name] = map[string]string{"type": typ}
	}
	out := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

var schemas = map[string]any{
	"Status": object(nil, map[string]string{"status": "string"}),
	"CaptureRequest": object([]string{"captureId", "birdId", "species", "lat", "lng"}, map[string]string{
		"captureId": "string", "birdId": "string", "species": "string", "lat": "number", "lng": "number",
	}),
	"PokedexEntry": object(nil, map[string]string{
		"birdId": "string", "species": "string", "capturedAt": "integer", "location": "object", "meta": "object",
	}),
	"SpawnList":   object(nil, map[string]string{"birds": "array"}),
	"ImageResult": object(nil, map[string]string{"imageUrl": "string", "name": "string", "nameJa": "string"}),
	"Description": object(nil, map[string]string{"description": "string", "descriptionJa": "string", "wikipediaUrl": "string"}),
	"Region":      object(nil, map[string]string{"state": "string", "city": "string"}),
	"CreateSessionRequest": object(nil, map[string]string{
		"sessionId": "string", "locale": "string",
	}),
	"SessionInfo":   object(nil, map[string]string{"sessionId": "string", "createdAt": "integer", "resumed": "boolean"}),
	"ArEvent":       object([]string{"origin", "data"}, map[string]string{"origin": "string", "data": "object"}),
	"ReceiveResult": object(nil, map[string]string{"handled": "boolean", "legacy": "boolean", "type": "string", "outcome": "object"}),
	"HostCapture":   object([]string{"birdId", "species"}, map[string]string{"birdId": "string", "species": "string"}),
	"Outcome": object(nil, map[string]string{
		"kind": "string", "captureId": "string", "entry": "object", "battle": "object", "levelUp": "object", "message": "string",
	}),
	"Location": object([]string{"lat", "lng"}, map[string]string{"lat": "number", "lng": "number"}),
}
