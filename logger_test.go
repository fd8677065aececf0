package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElkLogger(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	previousURL, previousEnv := elkUrl, appEnv
	elkUrl, appEnv = server.URL, "dev"
	t.Cleanup(func() { elkUrl, appEnv = previousURL, previousEnv })

	ev := &Evaluation{ID: "eval-1", PatientID: "P1", Source: SourceCache}
	require.NoError(t, elkLogger(webLogContext(ev, "doctor-1"), "info"))

	assert.Equal(t, "P1", received["patient"])
	assert.Equal(t, "eval-1", received["evaluation"])
	assert.Equal(t, "cache", received["source"])
	assert.Equal(t, "false", received["degraded"])
	assert.Equal(t, "doctor-1", received["user"])
	assert.Equal(t, "test", received["environment"], "non production logs go to the test index")
	assert.Equal(t, "info", received["level"])
	assert.NotEmpty(t, received["date"])
}

func TestElkLogger_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	previousURL := elkUrl
	elkUrl = server.URL
	t.Cleanup(func() { elkUrl = previousURL })

	err := elkLogger(map[string]string{"patient": "P1"}, "")
	assert.ErrorContains(t, err, "P1")
}

func TestElkLogger_Disabled(t *testing.T) {
	previousURL := elkUrl
	elkUrl = ""
	t.Cleanup(func() { elkUrl = previousURL })

	assert.NoError(t, elkLogger(map[string]string{}, "info"))
}
