package atlas

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sycured/blaeu/pkg/models"
)

func TestBuildRequestSelectorExclusivity(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "no selector",
			cfg:     Config{},
			wantErr: false,
		},
		{
			name:    "country only",
			cfg:     Config{Country: "FR"},
			wantErr: false,
		},
		{
			name:    "area only",
			cfg:     Config{Area: "North-Central"},
			wantErr: false,
		},
		{
			name:    "asn only",
			cfg:     Config{ASN: 64496},
			wantErr: false,
		},
		{
			name:    "prefix only",
			cfg:     Config{Prefix: "192.0.2.0/24"},
			wantErr: false,
		},
		{
			name:    "probe list only",
			cfg:     Config{ProbeIDs: []int64{1, 2, 3}},
			wantErr: false,
		},
		{
			name:    "country and area",
			cfg:     Config{Country: "FR", Area: "West"},
			wantErr: true,
		},
		{
			name:    "country and asn",
			cfg:     Config{Country: "FR", ASN: 64496},
			wantErr: true,
		},
		{
			name:    "prefix and probe list",
			cfg:     Config{Prefix: "2001:db8::/32", ProbeIDs: []int64{9}},
			wantErr: true,
		},
		{
			name:    "three selectors",
			cfg:     Config{Country: "FR", Area: "West", Prefix: "192.0.2.0/24"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.BuildRequest(discardLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("BuildRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("BuildRequest() error = %T, want *ConfigError", err)
				}
			}
		})
	}
}

func TestBuildRequestProbeList(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	cfg := Config{ProbeIDs: []int64{101, 102, 103}, Requested: 50}
	req, err := cfg.BuildRequest(logger)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}

	set := req.Probes[0]
	if set.Requested != 3 {
		t.Errorf("Requested = %d, want 3 (length of the probe list)", set.Requested)
	}
	if set.Type != "probes" || set.Value != "101,102,103" {
		t.Errorf("selector = %q %q, want \"probes\" \"101,102,103\"", set.Type, set.Value)
	}
	if !strings.Contains(buf.String(), "ignored") {
		t.Errorf("expected a warning about the ignored requested count, got %q", buf.String())
	}
}

func TestBuildRequestOldMeasurement(t *testing.T) {
	cfg := Config{OldMeasurement: 1010569, Description: "ping example"}
	req, err := cfg.BuildRequest(discardLogger())
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}

	set := req.Probes[0]
	if set.Requested != 500 {
		t.Errorf("Requested = %d, want the 500 sentinel", set.Requested)
	}
	if set.Type != "msm" || set.Value != "1010569" {
		t.Errorf("selector = %q %q, want \"msm\" \"1010569\"", set.Type, set.Value)
	}
	wantDesc := "ping example from probes of measurement #1010569"
	if req.Definitions[0].Description != wantDesc {
		t.Errorf("Description = %q, want %q", req.Definitions[0].Description, wantDesc)
	}
}

func TestBuildRequestCapabilityTags(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantTag string
		wantAF  int
	}{
		{
			name:    "IPv6 default",
			cfg:     Config{},
			wantTag: "system-ipv6-works",
			wantAF:  6,
		},
		{
			name:    "IPv4 flag",
			cfg:     Config{IPv4: true},
			wantTag: "system-ipv4-works",
			wantAF:  4,
		},
		{
			name:    "user tags preserved",
			cfg:     Config{Include: []string{"nat", "cable"}},
			wantTag: "system-ipv6-works",
			wantAF:  6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.cfg.BuildRequest(discardLogger())
			if err != nil {
				t.Fatalf("BuildRequest() error = %v", err)
			}
			if got := req.Definitions[0].AF; got != tt.wantAF {
				t.Errorf("AF = %d, want %d", got, tt.wantAF)
			}
			include := req.Probes[0].Tags.Include
			if !containsString(include, tt.wantTag) {
				t.Errorf("include tags %v missing %q", include, tt.wantTag)
			}
			for _, tag := range tt.cfg.Include {
				if !containsString(include, tag) {
					t.Errorf("include tags %v lost user tag %q", include, tag)
				}
			}
		})
	}
}

func TestBuildRequestPayloadShape(t *testing.T) {
	cfg := Config{
		Type:        "ping",
		Target:      "www.example.org",
		Description: "ping www.example.org",
		Country:     "FR",
		Port:        443,
		Size:        64,
		Spread:      10,
		Private:     true,
		OneOff:      true,
		Requested:   10,
		Exclude:     []string{"system-anchor"},
	}
	req, err := cfg.BuildRequest(discardLogger())
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}

	private := false
	want := &models.MeasurementRequest{
		IsOneOff: true,
		Definitions: []models.Definition{{
			Description: "ping www.example.org from FR",
			Port:        443,
			AF:          6,
			IsPublic:    &private,
			Size:        64,
			Spread:      10,
			Type:        "ping",
			Target:      "www.example.org",
		}},
		Probes: []models.ProbeSet{{
			Requested: 10,
			Type:      "country",
			Value:     "FR",
			Tags: models.TagFilter{
				Include: []string{"system-ipv6-works"},
				Exclude: []string{"system-anchor"},
			},
		}},
	}

	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("BuildRequest() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRequestDefaultSelector(t *testing.T) {
	cfg := Config{}
	req, err := cfg.BuildRequest(discardLogger())
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	set := req.Probes[0]
	if set.Type != "area" || set.Value != "WW" {
		t.Errorf("default selector = %q %q, want \"area\" \"WW\"", set.Type, set.Value)
	}
	if set.Requested != DefaultRequested {
		t.Errorf("Requested = %d, want %d", set.Requested, DefaultRequested)
	}
}
