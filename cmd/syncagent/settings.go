package main

type Settings struct {
	// RelayURL wins over DiscoveryURL when both are set.
	RelayURL     string `env:"RELAY_URL"`
	DiscoveryURL string `env:"DISCOVERY_URL,default=http://localhost:3001/api/server-info"`
	WSPath       string `env:"WS_PATH,default=/ws"`
	Kind         string `env:"AGENT_KIND,default=text"`
	LogEncoding  string `env:"LOG_ENCODING,default=console"`

	ReconnectInitialMs  int     `env:"RECONNECT_INITIAL_MS,default=2000"`
	ReconnectMaxMs      int     `env:"RECONNECT_MAX_MS,default=2000"`
	ReconnectMultiplier float64 `env:"RECONNECT_MULTIPLIER,default=1"`
	ReconnectJitter     float64 `env:"RECONNECT_JITTER,default=0"`
	ReconnectAttempts   int     `env:"RECONNECT_MAX_ATTEMPTS,default=0"`
}
