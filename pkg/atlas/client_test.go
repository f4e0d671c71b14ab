package atlas

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientFixedHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{BaseURL: srv.URL, Key: "secret", Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	var out map[string]any
	if err := c.GetJSON(context.Background(), srv.URL+"/", &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}

	if ct := got.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if accept := got.Get("Accept"); accept != "application/json" {
		t.Errorf("Accept = %q, want application/json", accept)
	}
	if ua := got.Get("User-Agent"); !strings.HasPrefix(ua, "blaeu-go/") {
		t.Errorf("User-Agent = %q, want the fixed client identifier", ua)
	}
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "value is not permitted", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{BaseURL: srv.URL, Key: "secret", Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	err = c.GetJSON(context.Background(), srv.URL+"/", nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("GetJSON() error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, http.StatusForbidden)
	}
	if !strings.Contains(httpErr.Error(), "value is not permitted") {
		t.Errorf("Error() = %q, want the response body as the reason", httpErr.Error())
	}
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused from now on

	c, err := NewClient(ClientOptions{BaseURL: url, Key: "secret", Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	err = c.GetJSON(context.Background(), url+"/", nil)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("GetJSON() error = %v, want *TransportError", err)
	}
}

func TestClientEndpointURLs(t *testing.T) {
	c := &Client{baseURL: "https://api.example/measurements", key: "k"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"create", c.createURL(), "https://api.example/measurements/?key=k"},
		{"probes", c.probesURL(7), "https://api.example/measurements/7/?fields=probes,status&key=k"},
		{"status", c.statusURL(7), "https://api.example/measurements/7/?fields=status&key=k"},
		{"all", c.measurementURL(7), "https://api.example/measurements/7/?key=k"},
		{"results", c.resultsURL(7), "https://api.example/measurements/7/results/?key=k"},
		{"latest", c.latestURL(7, 3), "https://api.example/measurements-latest/7/?versions=3"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s URL = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
