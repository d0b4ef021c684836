package output

import (
	"testing"

	"tripline/config"

	otelLog "go.opentelemetry.io/otel/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

func findAttr(kvs []otelLog.KeyValue, key string) (otelLog.Value, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return otelLog.Value{}, false
}

func TestResolveOtelEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "https://logs.example.test/v1/logs")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://fallback.example.test")

	cfg := &config.Config{OtelEndpoint: "  https://explicit.example.test  ", OtelFromEnv: true}
	if got := resolveOtelEndpoint(cfg); got != "https://explicit.example.test" {
		t.Fatalf("expected explicit endpoint, got %q", got)
	}

	cfg = &config.Config{OtelFromEnv: true}
	if got := resolveOtelEndpoint(cfg); got != "https://logs.example.test/v1/logs" {
		t.Fatalf("expected logs env endpoint, got %q", got)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "")
	cfg = &config.Config{OtelFromEnv: true}
	if got := resolveOtelEndpoint(cfg); got != "https://fallback.example.test" {
		t.Fatalf("expected fallback env endpoint, got %q", got)
	}

	cfg = &config.Config{OtelFromEnv: false}
	if got := resolveOtelEndpoint(cfg); got != "" {
		t.Fatalf("expected empty endpoint when env fallback disabled, got %q", got)
	}
}

func TestNewOtelLoggerRejectsSchemeless(t *testing.T) {
	if _, err := newOtelLogger(&config.Config{OtelEndpoint: "collector:4318"}); err == nil {
		t.Fatal("expected error for endpoint without scheme")
	}
	o, err := newOtelLogger(&config.Config{})
	if err != nil || o != nil {
		t.Fatalf("expected disabled logger, got %v, %v", o, err)
	}
	o.Emit("summary", SummaryPayload{})
	o.Shutdown()
}

func TestSanitizePayloadViolation(t *testing.T) {
	payload := ViolationPayload{Rule: "data", Change: ChangeChanged, Path: "/etc/shadow", Severity: 100}
	sanitized, ok := sanitizePayload("violation", payload, otelPolicy{}).(map[string]interface{})
	if !ok {
		t.Fatalf("expected sanitized violation map")
	}
	if _, ok := sanitized["path"]; ok {
		t.Fatal("expected path to be stripped")
	}
	if sanitized["name"] != "shadow" {
		t.Fatalf("expected base name to remain, got %#v", sanitized["name"])
	}

	kept := sanitizePayload("violation", payload, otelPolicy{includePaths: true}).(map[string]interface{})
	if kept["path"] != "/etc/shadow" {
		t.Fatalf("expected path kept when enabled, got %#v", kept["path"])
	}
}

func TestSanitizePayloadReportHost(t *testing.T) {
	payload := map[string]interface{}{
		"system_name": "host-a",
		"ip_address":  "10.0.0.5",
		"host_id":     "abc",
		"creator":     "root",
	}
	sanitized := sanitizePayload("report", payload, otelPolicy{}).(map[string]interface{})
	for _, key := range []string{"ip_address", "host_id", "creator"} {
		if _, ok := sanitized[key]; ok {
			t.Fatalf("expected %s to be stripped", key)
		}
	}
	if sanitized["system_name"] != "host-a" {
		t.Fatal("expected system name to remain")
	}
	if _, ok := payload["ip_address"]; !ok {
		t.Fatal("expected original payload to remain unchanged")
	}
}

func TestSemanticAttributesViolation(t *testing.T) {
	payload := ViolationPayload{
		Genre:      "FS",
		Rule:       "binaries",
		Severity:   100,
		Level:      "high",
		Change:     ChangeChanged,
		Path:       "/usr/bin/ls.bak",
		Properties: map[string]string{"size": "42"},
		Changed:    []PropChange{{Property: "sha256"}, {Property: "mtime"}},
	}

	attrs := semanticAttributes("violation", payload, otelPolicy{includePaths: true})
	if value, ok := findAttr(attrs, string(semconv.FilePathKey)); !ok || value.AsString() != "/usr/bin/ls.bak" {
		t.Fatalf("expected file path semantic attribute, got %#v", value)
	}
	if value, ok := findAttr(attrs, string(semconv.FileExtensionKey)); !ok || value.AsString() != "bak" {
		t.Fatalf("expected file extension semantic attribute, got %#v", value)
	}
	if value, ok := findAttr(attrs, string(semconv.FileSizeKey)); !ok || value.AsInt64() != 42 {
		t.Fatalf("expected file size semantic attribute, got %#v", value)
	}
	if value, ok := findAttr(attrs, "tripline.severity"); !ok || value.AsInt64() != 100 {
		t.Fatalf("expected severity attribute, got %#v", value)
	}
	value, ok := findAttr(attrs, "tripline.changed_properties")
	if !ok || len(value.AsSlice()) != 2 || value.AsSlice()[0].AsString() != "sha256" {
		t.Fatalf("expected changed properties attribute, got %#v", value)
	}

	noPaths := semanticAttributes("violation", payload, otelPolicy{})
	if _, ok := findAttr(noPaths, string(semconv.FilePathKey)); ok {
		t.Fatal("did not expect file path semantic attribute when paths are disabled")
	}
	if value, ok := findAttr(noPaths, string(semconv.FileNameKey)); !ok || value.AsString() != "ls.bak" {
		t.Fatalf("expected file name semantic attribute, got %#v", value)
	}
}

func TestSemanticAttributesSummary(t *testing.T) {
	attrs := semanticAttributes("summary", SummaryPayload{Added: 1, Violations: 1, ObjectsScanned: 9}, otelPolicy{})
	if value, ok := findAttr(attrs, "tripline.summary.objects_scanned"); !ok || value.AsInt64() != 9 {
		t.Fatalf("expected objects scanned attribute, got %#v", value)
	}
	if value, ok := findAttr(attrs, "tripline.summary.added"); !ok || value.AsInt64() != 1 {
		t.Fatalf("expected added attribute, got %#v", value)
	}
}

func TestRecordSeverity(t *testing.T) {
	if got := recordSeverity("violation", ViolationPayload{Severity: 100}); got != otelLog.SeverityError {
		t.Fatalf("expected error severity for high rule, got %v", got)
	}
	if got := recordSeverity("violation", ViolationPayload{Severity: 66}); got != otelLog.SeverityWarn {
		t.Fatalf("expected warn severity for medium rule, got %v", got)
	}
	if got := recordSeverity("summary", SummaryPayload{}); got != otelLog.SeverityInfo {
		t.Fatalf("expected info severity for clean summary, got %v", got)
	}
	if got := recordSeverity("summary", SummaryPayload{Violations: 2}); got != otelLog.SeverityWarn {
		t.Fatalf("expected warn severity for violating summary, got %v", got)
	}
}

func TestToLogValueNested(t *testing.T) {
	value := toLogValue(map[string]interface{}{
		"rule":    "data",
		"changed": []interface{}{map[string]interface{}{"property": "size"}},
	})
	if value.Kind() != otelLog.KindMap || len(value.AsMap()) != 2 {
		t.Fatalf("unexpected value: %#v", value)
	}
	if toLogValue(struct{}{}).Kind() != otelLog.KindEmpty {
		t.Fatal("expected unsupported types to map to empty value")
	}
}
