package config

import "time"

type Config struct {
	Service   ServiceConfig
	Broker    BrokerConfig
	API       APIConfig
	Reconnect ReconnectConfig
	Typing    TypingConfig
	Session   SessionConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Tracer    TracerConfig
}

type ServiceConfig struct {
	Name string `env:"SERVICE_NAME" envDefault:"livon-client"`
	Env  string `env:"SERVICE_ENV" envDefault:"development"`
}

// BrokerConfig describes the STOMP-over-WebSocket endpoint.
type BrokerConfig struct {
	URL              string        `env:"BROKER_URL" envDefault:"ws://localhost:8080/chat/websocket"`
	HandshakeTimeout time.Duration `env:"BROKER_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	Heartbeat        time.Duration `env:"BROKER_HEARTBEAT" envDefault:"10s"`
	WriteTimeout     time.Duration `env:"BROKER_WRITE_TIMEOUT" envDefault:"10s"`
}

// APIConfig covers the HTTP collaborators (history, upload).
type APIConfig struct {
	URL             string        `env:"API_URL" envDefault:"http://localhost:8080"`
	Timeout         time.Duration `env:"API_TIMEOUT" envDefault:"30s"`
	HistoryPageSize int           `env:"HISTORY_PAGE_SIZE" envDefault:"50"`
}

type ReconnectConfig struct {
	Delay       time.Duration `env:"RECONNECT_DELAY" envDefault:"3s"`
	Strategy    string        `env:"RECONNECT_STRATEGY" envDefault:"fixed"`
	MaxDelay    time.Duration `env:"RECONNECT_MAX_DELAY" envDefault:"30s"`
	MaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS" envDefault:"0"`
}

type TypingConfig struct {
	Quiet  time.Duration `env:"TYPING_QUIET" envDefault:"3s"`
	Expiry time.Duration `env:"TYPING_EXPIRY" envDefault:"3s"`
}

type SessionConfig struct {
	Room           string `env:"CHAT_ROOM"`
	User           string `env:"CHAT_USER"`
	Token          string `env:"CHAT_TOKEN"`
	OptimisticEcho bool   `env:"OPTIMISTIC_ECHO" envDefault:"true"`
}

type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"4"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"1"`
	PingTimeout  time.Duration `env:"REDIS_PING_TIMEOUT" envDefault:"2s"`
	PresenceTTL  time.Duration `env:"REDIS_PRESENCE_TTL" envDefault:"10m"`
	StreamMaxLen int64         `env:"REDIS_STREAM_MAXLEN" envDefault:"1000"`
}

type LoggerConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"TEXT"`
}

type TracerConfig struct {
	Address string `env:"OTEL_ENDPOINT"`
}
