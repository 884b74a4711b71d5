package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formrelay/internal/models"
)

func testSubmission() *models.Submission {
	return &models.Submission{
		FormType: "28-1900",
		Payload:  []byte(`{"email":"vet@example.com"}`),
	}
}

func TestHTTPClient_Submit_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		w.Write([]byte(`{"id":"600098193","status":"vbms"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key", time.Second)
	receipt, err := c.Submit(context.Background(), testSubmission(), nil)
	require.NoError(t, err)
	assert.Equal(t, "600098193", receipt.UpstreamID)
	assert.True(t, receipt.Confirmed())
}

func TestHTTPClient_Submit_ServerError_IsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key", time.Second)
	_, err := c.Submit(context.Background(), testSubmission(), nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsPermanent(err))
}

func TestHTTPClient_Submit_ValidationError_IsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":["missing veteran information"]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key", time.Second)
	_, err := c.Submit(context.Background(), testSubmission(), nil)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "missing veteran information")
}

func TestHTTPClient_Submit_ConnectionFailure_IsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL, "test-key", time.Second)
	_, err := c.Submit(context.Background(), testSubmission(), nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestHTTPClient_Submit_GarbledBody_IsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key", time.Second)
	_, err := c.Submit(context.Background(), testSubmission(), nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestHTTPClient_ListStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions/report", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"a1","status":"vbms"},{"id":"b2","status":"expired"}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key", time.Second)
	records, err := c.ListStatuses(context.Background(), []string{"a1", "b2"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "vbms", records[0].Status)
	assert.Equal(t, "b2", records[1].UpstreamID)
}
