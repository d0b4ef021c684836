package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"tripline/config"
	"tripline/logger"
	"tripline/version"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

type otelLogger struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
	policy   otelPolicy
}

type otelPolicy struct {
	includePaths bool
	includeHost  bool
}

func newOtelLogger(cfg *config.Config) (*otelLogger, error) {
	if cfg == nil {
		return nil, nil
	}
	endpoint := resolveOtelEndpoint(cfg)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.OtelHeaders) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.OtelHeaders))
	}
	if cfg.OtelTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.OtelTimeout))
	}

	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.OtelServiceName),
		semconv.ServiceVersionKey.String(version.Version),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)

	return &otelLogger{
		provider: provider,
		logger:   provider.Logger("tripline"),
		timeout:  cfg.OtelTimeout,
		endpoint: endpoint,
		policy: otelPolicy{
			includePaths: cfg.OtelExportPaths,
			includeHost:  cfg.OtelExportHost,
		},
	}, nil
}

func resolveOtelEndpoint(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if endpoint := strings.TrimSpace(cfg.OtelEndpoint); endpoint != "" {
		return endpoint
	}
	if !cfg.OtelFromEnv {
		return ""
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT")); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func (o *otelLogger) Endpoint() string {
	if o == nil {
		return ""
	}
	return o.endpoint
}

func (o *otelLogger) Emit(recordType string, payload interface{}) {
	if o == nil || o.logger == nil {
		return
	}
	safePayload := sanitizePayload(recordType, payload, o.policy)

	var record otelLog.Record
	now := time.Now()
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetEventName("tripline." + recordType)
	record.SetSeverity(recordSeverity(recordType, safePayload))
	record.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("schema_version", SchemaVersion),
	)
	if attrs := semanticAttributes(recordType, safePayload, o.policy); len(attrs) > 0 {
		record.AddAttributes(attrs...)
	}

	if value := toLogValue(safePayload); value.Kind() != otelLog.KindEmpty {
		record.SetBody(value)
	} else if data, err := json.Marshal(safePayload); err == nil {
		record.SetBody(otelLog.StringValue(string(data)))
	}

	o.logger.Emit(context.Background(), record)
}

func (o *otelLogger) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}

// recordSeverity maps violations onto log severities by rule severity so a
// collector can alert on them without parsing the body.
func recordSeverity(recordType string, payload interface{}) otelLog.Severity {
	switch recordType {
	case "error":
		return otelLog.SeverityError
	case "violation":
		sev, _ := getInt64Field(payloadToMap(payload), "severity")
		switch {
		case sev >= 100:
			return otelLog.SeverityError
		case sev >= 66:
			return otelLog.SeverityWarn
		}
		return otelLog.SeverityInfo
	case "summary":
		if n, ok := getInt64Field(payloadToMap(payload), "violations"); ok && n > 0 {
			return otelLog.SeverityWarn
		}
	}
	return otelLog.SeverityInfo
}

// sanitizePayload strips object paths and host identity unless their export
// was enabled. The input is never modified.
func sanitizePayload(recordType string, payload interface{}, policy otelPolicy) interface{} {
	data := payloadToMap(payload)
	if len(data) == 0 {
		return payload
	}

	switch recordType {
	case "violation", "error":
		if policy.includePaths {
			return data
		}
		sanitized := cloneMap(data)
		if p := getStringField(data, "path"); p != "" {
			sanitized["name"] = path.Base(p)
		}
		delete(sanitized, "path")
		return sanitized
	case "report":
		if policy.includeHost {
			return data
		}
		sanitized := cloneMap(data)
		delete(sanitized, "ip_address")
		delete(sanitized, "host_id")
		delete(sanitized, "creator")
		return sanitized
	default:
		return data
	}
}

func cloneMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func toLogValue(value interface{}) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case []byte:
		return otelLog.BytesValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case float32:
		return otelLog.Float64Value(float64(v))
	case map[string]interface{}:
		return otelLog.MapValue(toLogKeyValues(v)...)
	case map[string]string:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for k, val := range v {
			kvs = append(kvs, otelLog.String(k, val))
		}
		return otelLog.MapValue(kvs...)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	case []interface{}:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		return otelLog.Value{}
	}
}

func toLogKeyValues(values map[string]interface{}) []otelLog.KeyValue {
	kvs := make([]otelLog.KeyValue, 0, len(values))
	for key, value := range values {
		kvs = append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(value)})
	}
	return kvs
}

func semanticAttributes(recordType string, payload interface{}, policy otelPolicy) []otelLog.KeyValue {
	data := payloadToMap(payload)
	if len(data) == 0 {
		return nil
	}

	switch recordType {
	case "violation":
		return violationSemanticAttributes(data, policy)
	case "error":
		return errorSemanticAttributes(data, policy)
	case "report":
		return reportSemanticAttributes(data, policy)
	case "summary":
		return summarySemanticAttributes(data)
	default:
		return nil
	}
}

func violationSemanticAttributes(data map[string]interface{}, policy otelPolicy) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	p := getStringField(data, "path")
	name := getStringField(data, "name")
	if name == "" && p != "" {
		name = path.Base(p)
	}
	if policy.includePaths && p != "" {
		kvs = append(kvs, otelLog.String(string(semconv.FilePathKey), p))
		kvs = append(kvs, otelLog.String(string(semconv.FileDirectoryKey), path.Dir(p)))
		if ext := strings.TrimPrefix(path.Ext(p), "."); ext != "" {
			kvs = append(kvs, otelLog.String(string(semconv.FileExtensionKey), ext))
		}
	}
	if name != "" {
		kvs = append(kvs, otelLog.String(string(semconv.FileNameKey), name))
	}

	kvs = appendStringAttr(kvs, "tripline.genre", getStringField(data, "genre"))
	kvs = appendStringAttr(kvs, "tripline.rule", getStringField(data, "rule"))
	kvs = appendStringAttr(kvs, "tripline.change", getStringField(data, "change"))
	kvs = appendStringAttr(kvs, "tripline.severity_level", getStringField(data, "severity_level"))
	if sev, ok := getInt64Field(data, "severity"); ok {
		kvs = append(kvs, otelLog.Int64("tripline.severity", sev))
	}

	if props := getStringMapField(data, "properties"); len(props) > 0 {
		if size, err := strconv.ParseInt(props["size"], 10, 64); err == nil {
			kvs = append(kvs, otelLog.Int64(string(semconv.FileSizeKey), size))
		}
	}
	if changed := changedProperties(data); len(changed) > 0 {
		values := make([]otelLog.Value, 0, len(changed))
		for _, item := range changed {
			values = append(values, otelLog.StringValue(item))
		}
		kvs = append(kvs, otelLog.KeyValue{Key: "tripline.changed_properties", Value: otelLog.SliceValue(values...)})
	}
	return kvs
}

func changedProperties(data map[string]interface{}) []string {
	list, ok := data["changed"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			if prop := getStringField(m, "property"); prop != "" {
				out = append(out, prop)
			}
		}
	}
	return out
}

func errorSemanticAttributes(data map[string]interface{}, policy otelPolicy) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	kvs = appendStringAttr(kvs, "tripline.error.kind", getStringField(data, "kind"))
	kvs = appendStringAttr(kvs, "tripline.rule", getStringField(data, "rule"))
	if policy.includePaths {
		kvs = appendStringAttr(kvs, string(semconv.FilePathKey), getStringField(data, "path"))
	}
	return kvs
}

func reportSemanticAttributes(data map[string]interface{}, policy otelPolicy) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	kvs = appendStringAttr(kvs, string(semconv.HostNameKey), getStringField(data, "system_name"))
	if policy.includeHost {
		kvs = appendStringAttr(kvs, string(semconv.HostIDKey), getStringField(data, "host_id"))
		kvs = appendStringAttr(kvs, string(semconv.HostIPKey), getStringField(data, "ip_address"))
	}
	kvs = appendStringAttr(kvs, "tripline.report.id", getStringField(data, "report_id"))
	kvs = appendStringAttr(kvs, "tripline.database.id", getStringField(data, "database_id"))
	return kvs
}

func summarySemanticAttributes(data map[string]interface{}) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	for _, key := range []string{"added", "removed", "changed", "violations", "errors", "objects_scanned", "max_severity"} {
		if n, ok := getInt64Field(data, key); ok {
			kvs = append(kvs, otelLog.Int64("tripline.summary."+key, n))
		}
	}
	return kvs
}

func payloadToMap(payload interface{}) map[string]interface{} {
	switch v := payload.(type) {
	case map[string]interface{}:
		return v
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			out[key] = value
		}
		return out
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil
		}
		return decoded
	}
}

func getStringField(values map[string]interface{}, key string) string {
	value, ok := values[key]
	if !ok || value == nil {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprint(value)
}

func getInt64Field(values map[string]interface{}, key string) (int64, bool) {
	value, ok := values[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func getStringMapField(values map[string]interface{}, key string) map[string]string {
	value, ok := values[key]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case map[string]string:
		return v
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, val := range v {
			if val == nil {
				continue
			}
			out[k] = fmt.Sprint(val)
		}
		return out
	default:
		return nil
	}
}

func appendStringAttr(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}
