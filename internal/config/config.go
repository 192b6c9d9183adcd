package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppCfg struct {
	Env  string
	Port string
}

// PaymentCfg drives the payment acceptance set. A network is enabled iff
// its receiving address is present; environments default to the
// low-value test network of each chain.
type PaymentCfg struct {
	TopUpCost      int64  `validate:"required,gt=0"`
	Asset          string `validate:"required"`
	SolanaPayTo    string
	SolanaNetwork  string
	EVMPayTo       string
	EVMNetwork     string
	FacilitatorURL string `validate:"required,url"`
}

type LedgerCfg struct {
	BaseURL string `validate:"required,url"`
	APIKey  string `validate:"required"`
}

// DBCfg is optional; a DSN enables the top-up receipt store and the
// reconcile worker.
type DBCfg struct {
	DSN string
}

// RedisCfg is optional; an address enables rate limiting on the paid
// route.
type RedisCfg struct {
	Addr            string
	RateLimitPerMin int
}

type Cfg struct {
	App     AppCfg
	Payment PaymentCfg
	Ledger  LedgerCfg
	DB      DBCfg
	Redis   RedisCfg
}

func Load() Cfg {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("TOP_UP_ASSET", "USDC")
	viper.SetDefault("SOLANA_NETWORK", "solana-devnet")
	viper.SetDefault("EVM_NETWORK", "base-sepolia")
	viper.SetDefault("RATE_LIMIT_PER_MIN", 60)

	cfg := Cfg{
		App: AppCfg{
			Env:  viper.GetString("APP_ENV"),
			Port: viper.GetString("APP_PORT"),
		},
		Payment: PaymentCfg{
			TopUpCost:      viper.GetInt64("TOP_UP_COST"),
			Asset:          viper.GetString("TOP_UP_ASSET"),
			SolanaPayTo:    viper.GetString("SOLANA_PAY_TO"),
			SolanaNetwork:  viper.GetString("SOLANA_NETWORK"),
			EVMPayTo:       viper.GetString("EVM_PAY_TO"),
			EVMNetwork:     viper.GetString("EVM_NETWORK"),
			FacilitatorURL: viper.GetString("FACILITATOR_URL"),
		},
		Ledger: LedgerCfg{
			BaseURL: viper.GetString("LEDGER_BASE_URL"),
			APIKey:  viper.GetString("LEDGER_API_KEY"),
		},
		DB: DBCfg{DSN: viper.GetString("DB_DSN")},
		Redis: RedisCfg{
			Addr:            viper.GetString("REDIS_ADDR"),
			RateLimitPerMin: viper.GetInt("RATE_LIMIT_PER_MIN"),
		},
	}

	// Fail fast on required settings.
	if err := validator.New().Struct(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.Payment.SolanaPayTo == "" && cfg.Payment.EVMPayTo == "" {
		log.Fatal().Msg("at least one of SOLANA_PAY_TO or EVM_PAY_TO is required")
	}

	return cfg
}
