package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/duet/pkg/model"
)

type mockChatter struct {
	output *model.ChatOutput
	err    error
	inputs []*model.ChatInput
}

func (m *mockChatter) Chat(ctx context.Context, input *model.ChatInput) (*model.ChatOutput, error) {
	m.inputs = append(m.inputs, input)
	return m.output, m.err
}

func postChat(t *testing.T, orchestrator chatter, body string) *http.Response {
	t.Helper()

	app := newServer(t.Context(), orchestrator)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	gt.NoError(t, err)
	return resp
}

func TestServeChat(t *testing.T) {
	mock := &mockChatter{output: &model.ChatOutput{
		Answer:   "There are 3 employees.",
		SQLQuery: "SELECT count(*) FROM employees",
		Timing:   map[string]float64{"total_ms": 12.5},
	}}

	resp := postChat(t, mock, `{"question": "how many employees?", "session_id": "s1"}`)
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	var body chatResponse
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	gt.Equal(t, body.Answer, "There are 3 employees.")
	gt.Equal(t, body.SQLQuery, "SELECT count(*) FROM employees")
	gt.Equal(t, body.SessionID, "s1")

	gt.Equal(t, len(mock.inputs), 1)
	gt.Equal(t, mock.inputs[0].Question, "how many employees?")
}

func TestServeChatDefaultsSession(t *testing.T) {
	mock := &mockChatter{output: &model.ChatOutput{Answer: "ok"}}

	resp := postChat(t, mock, `{"question": "hello"}`)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.Equal(t, mock.inputs[0].SessionID, "default")
}

func TestServeChatRejectsMissingQuestion(t *testing.T) {
	mock := &mockChatter{}

	resp := postChat(t, mock, `{"session_id": "s1"}`)
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
	gt.Equal(t, len(mock.inputs), 0)
}

func TestServeChatRejectsBadBody(t *testing.T) {
	mock := &mockChatter{}

	resp := postChat(t, mock, `{broken`)
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
}

func TestServeChatInfraFailure(t *testing.T) {
	mock := &mockChatter{err: errors.New("vector index unreachable")}

	resp := postChat(t, mock, `{"question": "hello"}`)
	gt.Equal(t, resp.StatusCode, http.StatusInternalServerError)
}

func TestServeHealth(t *testing.T) {
	app := newServer(t.Context(), &mockChatter{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	resp, err := app.Test(req)
	gt.NoError(t, err)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
}
