package cfg

type OtelConfig struct {
	// OTLPEndpoint empty disables trace export.
	OTLPEndpoint string
	ServiceName  string
	SamplerRatio float64
}

func (l *Loader) loadOtel(defaultService string) OtelConfig {
	return OtelConfig{
		OTLPEndpoint: l.getEnvWithDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  l.getEnvWithDefault("OTEL_SERVICE_NAME", defaultService),
		SamplerRatio: l.getEnvFloatOrDefault("OTEL_SAMPLER_RATIO", 1),
	}
}
