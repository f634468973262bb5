package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Market struct {
	// PriceStaleness bounds how old an oracle observation may be before
	// operations reject with a stale-price error.
	PriceStaleness time.Duration
	// FundingInterval is the minimum elapsed time between funding-rate
	// recomputations.
	FundingInterval time.Duration
}

type Node struct {
	DBPath           string
	APIAddr          string
	LogFile          string
	Debug            bool
	MetricsNamespace string
}

type Accounts struct {
	// Admins may toggle the pause switch and post oracle prices.
	Admins []common.Address
	// Keepers may trigger liquidations.
	Keepers []common.Address
	// Forwarders are trusted relays whose appended sender tag is honored.
	Forwarders []common.Address
}

type Config struct {
	Market   Market
	Node     Node
	Accounts Accounts
}

func Default() Config {
	return Config{
		Market: Market{
			PriceStaleness:  60 * time.Second,
			FundingInterval: 8 * time.Hour,
		},
		Node: Node{
			DBPath:           "data/ledger",
			APIAddr:          ":8080",
			LogFile:          "data/node.log",
			MetricsNamespace: "perpledger",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if it exists) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv("PRICE_STALENESS_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.Market.PriceStaleness = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("FUNDING_INTERVAL_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.Market.FundingInterval = time.Duration(s) * time.Second
		}
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Node.Debug = v == "true"
	}

	cfg.Accounts.Admins = parseAddressList(os.Getenv("ADMIN_ADDRS"))
	cfg.Accounts.Keepers = parseAddressList(os.Getenv("KEEPER_ADDRS"))
	cfg.Accounts.Forwarders = parseAddressList(os.Getenv("FORWARDER_ADDRS"))

	return cfg
}

// parseAddressList splits a comma-separated hex address list, dropping
// anything that does not parse.
func parseAddressList(s string) []common.Address {
	if s == "" {
		return nil
	}
	var addrs []common.Address
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if common.IsHexAddress(part) {
			addrs = append(addrs, common.HexToAddress(part))
		}
	}
	return addrs
}
