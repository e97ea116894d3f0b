package main

type Settings struct {
	Port           int     `env:"PORT,default=3001"`
	ServerName     string  `env:"SERVER_NAME"`
	BasePath       string  `env:"BASE_PATH"`
	LogEncoding    string  `env:"LOG_ENCODING,default=console"`
	MaxMessageSize int64   `env:"MAX_MESSAGE_SIZE,default=16777216"`
	RateLimit      float64 `env:"RATE_LIMIT,default=0"`
	RateBurst      int     `env:"RATE_BURST,default=10"`
	SendBufferSize int     `env:"SEND_BUFFER_SIZE,default=256"`
	SyncFormat     string  `env:"SYNC_FORMAT,default=nested"`
	// Comma separated, empty allows every origin.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
}
