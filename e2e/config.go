package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Left empty, the suites are skipped
	RelayHTTPAddr string `envconfig:"RELAY_HTTP_ADDR"`
	RelayGRPCAddr string `envconfig:"RELAY_GRPC_ADDR"`
	JWTSecret     string `envconfig:"JWT_SECRET"`
	// E2E_DEBUG_JSON dumps gRPC bodies and websocket frames
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
