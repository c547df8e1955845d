package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/crossskill/coachhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type bindErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details struct {
		JSON   string                `json:"json"`
		Field  string                `json:"field"`
		Fields []handlers.FieldError `json:"fields"`
	} `json:"details"`
}

func bindRouter() *gin.Engine {
	r := gin.New()
	r.POST("/login", func(ctx *gin.Context) {
		var req handlers.LoginRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusNoContent)
	})
	return r
}

func postRaw(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBindJSON_ValidationErrorsUseJSONFieldNames(t *testing.T) {
	w := postRaw(bindRouter(), "/login", `{"username":"a","role":"`+strings.Repeat("x", 40)+`"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	var resp bindErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
	}

	if resp.Success || resp.Code != "invalid_request" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if len(resp.Details.Fields) != 1 {
		t.Fatalf("expected one field error, got %+v", resp.Details.Fields)
	}

	fe := resp.Details.Fields[0]
	if fe.Field != "role" || fe.Rule != "max" || fe.Param != "32" {
		t.Fatalf("unexpected field error: %+v", fe)
	}
	if fe.Message == "" {
		t.Fatalf("field error should include a message")
	}
}

func TestBindJSON_TypeMismatchUsesJSONFieldNames(t *testing.T) {
	w := postRaw(bindRouter(), "/login", `{"username":42}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	var resp bindErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
	}

	if resp.Details.JSON != "invalid_json_type" {
		t.Fatalf("expected invalid_json_type, got %q", resp.Details.JSON)
	}
	if resp.Details.Field != "username" {
		t.Fatalf("expected detail field to be username, got %q", resp.Details.Field)
	}
}

func TestBindJSON_SyntaxError(t *testing.T) {
	w := postRaw(bindRouter(), "/login", `{"username":`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestBindJSON_EmptyBodyBindsAsEmptyObject(t *testing.T) {
	w := postRaw(bindRouter(), "/login", ``)

	if w.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}
}
