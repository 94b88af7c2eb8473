package tracing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"disabled ignores fields", Config{Enabled: false, SamplingRate: 7}, nil},
		{"missing service name", Config{Enabled: true, SamplingRate: 0.5}, ErrMissingServiceName},
		{"negative sampling", Config{Enabled: true, ServiceName: "sparkfeed", SamplingRate: -0.1}, ErrInvalidSamplingRate},
		{"sampling above one", Config{Enabled: true, ServiceName: "sparkfeed", SamplingRate: 1.5}, ErrInvalidSamplingRate},
		{"unsupported exporter", Config{Enabled: true, ServiceName: "sparkfeed", ExporterType: "zipkin"}, ErrUnsupportedExporter},
		{"grpc", Config{Enabled: true, ServiceName: "sparkfeed", ExporterType: ExporterOTLPGRPC, SamplingRate: 1}, nil},
		{"default exporter", Config{Enabled: true, ServiceName: "sparkfeed"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.IsEnabled() {
		t.Error("expected tracing to be disabled")
	}
	if provider.Tracer("sparkfeed") == nil {
		t.Error("expected no-op tracer")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, SamplingRate: 0.5})
	if !errors.Is(err, ErrMissingServiceName) {
		t.Fatalf("error = %v, want ErrMissingServiceName", err)
	}
}

func TestNewProvider_Exporters(t *testing.T) {
	tests := []struct {
		name         string
		exporterType string
		endpoint     string
		samplingRate float64
	}{
		{"otlp-http partial sampling", ExporterOTLPHTTP, "localhost:4318", 0.25},
		{"otlp-grpc full sampling", ExporterOTLPGRPC, "localhost:4317", 1.0},
		{"default exporter no sampling", "", "", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(context.Background(), Config{
				ServiceName:  "sparkfeed-test",
				Enabled:      true,
				Environment:  "test",
				ExporterType: tt.exporterType,
				OTLPEndpoint: tt.endpoint,
				SamplingRate: tt.samplingRate,
				InsecureMode: true,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !provider.IsEnabled() {
				t.Error("expected tracing to be enabled")
			}

			_, span := provider.Tracer("sparkfeed-test").Start(context.Background(), "check")
			span.End()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			// Export may fail without a collector; only shutdown itself matters.
			_ = provider.Shutdown(ctx)
		})
	}
}

func TestProvider_Shutdown_Nil(t *testing.T) {
	provider := &Provider{}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error on shutdown with nil tp: %v", err)
	}
}
