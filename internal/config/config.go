package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Kafka struct {
	Brokers        []string `env:"KAFKA_BROKERS,required,notEmpty" envSeparator:","`
	SubmittedTopic string   `env:"KAFKA_SUBMITTED_TOPIC" envDefault:"order.submitted"`
	SettledTopic   string   `env:"KAFKA_SETTLED_TOPIC" envDefault:"order.settled"`
	GroupID        string   `env:"KAFKA_GROUP_ID"`
	EnsureTopics   bool     `env:"KAFKA_ENSURE_TOPICS" envDefault:"true"`
}

// API configures cmd/api: ingress, auth and the reconciliation sweep.
type API struct {
	Kafka
	DatabaseURL   string        `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret     string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	Port          string        `env:"PORT" envDefault:"3001"`
	CORSOrigin    string        `env:"CORS_ORIGIN" envDefault:"*"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	SweepMinAge   time.Duration `env:"SWEEP_MIN_AGE" envDefault:"1m"`
	SweepBatch    int           `env:"SWEEP_BATCH" envDefault:"100"`
}

// Executor configures cmd/executor.
type Executor struct {
	Kafka
	DatabaseURL     string        `env:"DATABASE_URL,required,notEmpty"`
	ExchangeBaseURL string        `env:"EXCHANGE_BASE_URL" envDefault:"https://testnet.binance.vision"`
	ExchangeTimeout time.Duration `env:"EXCHANGE_TIMEOUT" envDefault:"10s"`
	RulesTTL        time.Duration `env:"RULES_TTL" envDefault:"5m"`
	TrackInterval   time.Duration `env:"TRACK_INTERVAL" envDefault:"15s"`
	TrackBatch      int           `env:"TRACK_BATCH" envDefault:"50"`
}

// Gateway configures cmd/gateway.
type Gateway struct {
	Kafka
	JWTSecret    string        `env:"JWT_SECRET,required,notEmpty"`
	Port         string        `env:"PORT" envDefault:"3002"`
	WSPath       string        `env:"WS_PATH" envDefault:"/ws"`
	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"30s"`
	SendBuffer   int           `env:"SEND_BUFFER" envDefault:"64"`
}

// OrderGen configures cmd/ordergen, which drives the API like a client would.
type OrderGen struct {
	APIURL    string        `env:"API_URL" envDefault:"http://localhost:3001"`
	Email     string        `env:"ORDERGEN_EMAIL" envDefault:"ordergen@example.com"`
	Password  string        `env:"ORDERGEN_PASSWORD" envDefault:"ordergen-password"`
	APIKey    string        `env:"ORDERGEN_API_KEY"`
	SecretKey string        `env:"ORDERGEN_SECRET_KEY"`
	Rate      int           `env:"ORDERS_PER_SEC" envDefault:"1"`
	StayAlive bool          `env:"ORDERGEN_STAY_ALIVE" envDefault:"false"`
	TTL       time.Duration `env:"ORDERGEN_TTL" envDefault:"2m"`
}

func LoadAPI() (API, error) {
	cfg := API{Kafka: Kafka{GroupID: "order-api"}}
	err := parse(&cfg)
	return cfg, err
}

func LoadExecutor() (Executor, error) {
	cfg := Executor{Kafka: Kafka{GroupID: "order-executor"}}
	err := parse(&cfg)
	return cfg, err
}

func LoadGateway() (Gateway, error) {
	cfg := Gateway{Kafka: Kafka{GroupID: "order-gateway"}}
	err := parse(&cfg)
	return cfg, err
}

func LoadOrderGen() (OrderGen, error) {
	var cfg OrderGen
	err := parse(&cfg)
	if cfg.Rate <= 0 || cfg.Rate > 50 {
		cfg.Rate = 1
	}
	return cfg, err
}

func parse(cfg any) error {
	// A missing .env is fine; the process environment wins either way.
	_ = godotenv.Load()
	return env.Parse(cfg)
}
