package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECGDecodesSamples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ecg", r.URL.Path)
		_, _ = w.Write([]byte(`[{"timestamp":0,"value":0.1,"isAnomaly":false}]`))
	}))
	defer srv.Close()

	got, err := New(srv.URL, time.Second).ECG(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.1, got[0].Value)
}

func TestEEGFetcherReportsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).EEGFetcher().Fetch(context.Background())

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Equal(t, "/eeg", se.Path)
}

func TestMalformedBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).ECG(context.Background())
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(srv.URL, 20*time.Millisecond).ECG(context.Background())
	assert.Error(t, err)
}

func TestChatPostsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Message)

		_, _ = w.Write([]byte(`{"success":true,"response":"hi there","type":"text"}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL, time.Second).Chat(context.Background(), ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hi there", res.Response)
}

func TestScanDocumentsSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files := r.MultipartForm.File["documents"]
		require.Len(t, files, 2)

		f, err := files[1].Open()
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "report two", string(body))

		_, _ = w.Write([]byte(`{"success":true,"results":[{"type":"success","message":"ok","data":{"conditions":["Hypertension"]}}]}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL, time.Second).ScanDocuments(context.Background(), []Document{
		{Name: "a.pdf", Content: strings.NewReader("report one")},
		{Name: "b.pdf", Content: strings.NewReader("report two")},
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, []string{"Hypertension"}, res.Results[0].Data.Conditions)
}

func TestScanDocumentsRequiresInput(t *testing.T) {
	_, err := New("http://unused", time.Second).ScanDocuments(context.Background(), nil)
	assert.Error(t, err)
}

func TestCombine(t *testing.T) {
	results := []ScanResult{
		{Type: "success", Data: &ScanData{
			Conditions:  []string{"Hypertension"},
			Medications: []ScanMedication{{Name: "Lisinopril", Dosage: "10mg", Frequency: "Daily"}},
			PatientInfo: map[string]any{"name": "John Doe", "age": 45.0},
		}},
		{Type: "error", Message: "unreadable", Data: &ScanData{Conditions: []string{"ignored"}}},
		{Type: "success", Data: &ScanData{
			Conditions:   []string{"Arrhythmia"},
			Appointments: []ScanAppointment{{Type: "Cardiology", Date: "2025-06-01"}},
			PatientInfo:  map[string]any{"age": 46.0},
		}},
	}

	got := Combine(results)
	require.NotNil(t, got)
	assert.Equal(t, []string{"Hypertension", "Arrhythmia"}, got.Conditions)
	assert.Len(t, got.Medications, 1)
	assert.Len(t, got.Appointments, 1)
	assert.Equal(t, "John Doe", got.PatientInfo["name"])
	assert.Equal(t, 46.0, got.PatientInfo["age"])
}

func TestCombineNoSuccess(t *testing.T) {
	assert.Nil(t, Combine([]ScanResult{{Type: "error", Message: "failed"}}))
}
