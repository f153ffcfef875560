package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"formflow-backend/internal/auth"
	"formflow-backend/internal/engine"
)

const testSecret = "test-secret"

func testApp(t *testing.T, f *fixture) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: engine.NewErrorHandler(zap.NewNop())})
	engine.RegisterDataRoutes(app, engine.NewHandler(f.records, f.approver), auth.AuthMiddleware(testSecret))
	return app
}

func tokenFor(t *testing.T, id int64, admin bool) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken(id, admin, testSecret)
	require.NoError(t, err)
	return tok
}

func doRequest(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHandler_RequiresAuth(t *testing.T) {
	f := newFixture(t)
	app := testApp(t, f)

	status, body := doRequest(t, app, "GET", "/api/data/people", "", nil)
	assert.Equal(t, 401, status)
	assert.Equal(t, engine.CodeUnauthorized, errorCode(body))

	status, _ = doRequest(t, app, "GET", "/api/data/people", "not-a-jwt", nil)
	assert.Equal(t, 401, status)
}

func TestHandler_InsertApproveFlow(t *testing.T) {
	f := newFixture(t)
	f.define(t, "people", peopleFields())
	app := testApp(t, f)

	clerk := tokenFor(t, clerkID, false)
	signer := tokenFor(t, signerID, false)

	status, body := doRequest(t, app, "POST", "/api/data/people/insert", clerk, map[string]any{"name": "a", "age": 1})
	require.Equal(t, 201, status, body)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["inserted_count"])
	id := int64(data["id"].(float64))

	status, body = doRequest(t, app, "GET", "/api/data/people/"+itoa(id), clerk, nil)
	require.Equal(t, 200, status)
	row := body["data"].(map[string]any)
	assert.Equal(t, "PENDING", row["approval_status"])
	assert.EqualValues(t, clerkID, row["created_by"])

	status, body = doRequest(t, app, "POST", "/api/data/people/"+itoa(id)+"/approve", clerk, nil)
	assert.Equal(t, 403, status)
	assert.Equal(t, engine.CodeUnauthorized, errorCode(body))

	status, body = doRequest(t, app, "POST", "/api/data/people/"+itoa(id)+"/approve", signer, nil)
	require.Equal(t, 200, status, body)
	assert.Equal(t, "APPROVED", body["data"].(map[string]any)["status"])

	status, body = doRequest(t, app, "POST", "/api/data/people/"+itoa(id)+"/approve", signer, nil)
	assert.Equal(t, 409, status)
	assert.Equal(t, engine.CodeConflict, errorCode(body))

	status, body = doRequest(t, app, "GET", "/api/data/people", clerk, nil)
	require.Equal(t, 200, status)
	assert.Len(t, body["data"].([]any), 1)
}

func TestHandler_ApproveOnBehalfIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	f.define(t, "people", peopleFields())
	app := testApp(t, f)
	id := f.insert(t, "people", map[string]any{"name": "a"}, clerkID)
	path := "/api/data/people/" + itoa(id) + "/approve"

	status, _ := doRequest(t, app, "POST", path, tokenFor(t, clerkID, false), map[string]any{"user_id": signerID})
	assert.Equal(t, 403, status)

	status, body := doRequest(t, app, "POST", path, tokenFor(t, adminID, true), map[string]any{"user_id": reviewerID})
	require.Equal(t, 200, status, body)
	assert.Equal(t, "IN_PROGRESS", body["data"].(map[string]any)["status"])
}

func TestHandler_UpdateAndValidation(t *testing.T) {
	f := newFixture(t)
	f.define(t, "people", peopleFields())
	app := testApp(t, f)
	tok := tokenFor(t, reviewerID, false)
	id := f.insert(t, "people", map[string]any{"name": "a"}, clerkID)

	status, body := doRequest(t, app, "PUT", "/api/data/people/"+itoa(id), tok, map[string]any{"age": 30})
	require.Equal(t, 200, status, body)

	status, body = doRequest(t, app, "PUT", "/api/data/people/"+itoa(id), tok, map[string]any{"age": "thirty"})
	assert.Equal(t, 422, status)
	assert.Equal(t, engine.CodeValidationFailed, errorCode(body))

	status, body = doRequest(t, app, "PUT", "/api/data/people/999", tok, map[string]any{"age": 1})
	assert.Equal(t, 404, status)
	assert.Equal(t, engine.CodeNotFound, errorCode(body))

	status, body = doRequest(t, app, "PUT", "/api/data/people/abc", tok, map[string]any{"age": 1})
	assert.Equal(t, 400, status)
	assert.Equal(t, engine.CodeInvalidPayload, errorCode(body))
}

func TestHandler_DeleteAcknowledgment(t *testing.T) {
	f := newFixture(t)
	f.define(t, "people", peopleFields())
	app := testApp(t, f)
	id := f.insert(t, "people", map[string]any{"name": "a"}, clerkID)
	path := "/api/data/people/" + itoa(id) + "/delete"

	status, _ := doRequest(t, app, "POST", path, tokenFor(t, clerkID, false), nil)
	assert.Equal(t, 403, status)

	status, body := doRequest(t, app, "POST", path, tokenFor(t, adminID, true), nil)
	require.Equal(t, 200, status, body)

	status, _ = doRequest(t, app, "GET", "/api/data/people/"+itoa(id), tokenFor(t, clerkID, false), nil)
	assert.Equal(t, 200, status)
}

func TestHandler_UnknownTable(t *testing.T) {
	f := newFixture(t)
	app := testApp(t, f)

	status, body := doRequest(t, app, "GET", "/api/data/ghosts", tokenFor(t, clerkID, false), nil)
	assert.Equal(t, 404, status)
	assert.Equal(t, engine.CodeNotFound, errorCode(body))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestHandler_InsertKeepsIntegerPrecision(t *testing.T) {
	f := newFixture(t)
	f.define(t, "people", peopleFields())
	app := testApp(t, f)
	tok := tokenFor(t, clerkID, false)

	status, body := doRequest(t, app, "POST", "/api/data/people/insert", tok,
		json.RawMessage(`{"name": "a", "age": 9007199254740993}`))
	require.Equal(t, 201, status, body)
	id := int64(body["data"].(map[string]any)["id"].(float64))

	row, err := f.records.Get(context.Background(), "people", id)
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), row["age"])

	status, body = doRequest(t, app, "POST", "/api/data/people/insert", tok,
		json.RawMessage(`{"name": "a", "age": 10000000000000000000}`))
	assert.Equal(t, 422, status)
	assert.Equal(t, engine.CodeValidationFailed, errorCode(body))

	status, body = doRequest(t, app, "POST", "/api/data/people/insert", tok,
		json.RawMessage(`{"name": "a"} {"name": "b"}`))
	assert.Equal(t, 400, status)
	assert.Equal(t, engine.CodeInvalidPayload, errorCode(body))
}
