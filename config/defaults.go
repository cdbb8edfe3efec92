// =============================================================================
// 📦 SampleFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/sampleflow/sample"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Upstream:  DefaultUpstreamConfig(),
		Stream:    DefaultStreamConfig(),
		Gateway:   DefaultGatewayConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        5000,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		CORSAllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:3001",
		},
		RateLimitRPS:   100,
		RateLimitBurst: 200,
	}
}

// DefaultUpstreamConfig 返回默认上游配置
func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		Host:           "localhost",
		Port:           9000,
		ReconnectDelay: 5 * time.Second,
		DialTimeout:    3 * time.Second,
		MaxLineBytes:   64 * 1024,
	}
}

// DefaultStreamConfig 返回默认采样配置（100Hz 下保留约 30 秒）
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Arity:          sample.DefaultArity,
		BufferCapacity: 3000,
	}
}

// DefaultGatewayConfig 返回默认订阅端点配置
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Path:        "/ws",
		SendTimeout: 2 * time.Second,
		ReadLimit:   4096,
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:3001",
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		OTLPInsecure: true,
		ServiceName:  "sampleflow",
		SampleRate:   0.1,
	}
}
