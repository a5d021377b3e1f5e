package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/tdex-network/btcvault/pkg/coinselect"
	"github.com/tdex-network/btcvault/pkg/feeestimator"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

const (
	// DatadirKey is the local data directory to store the wallets' state
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the bitcoin network new wallets are created for, one of
	// mainnet, testnet, signet, regtest
	NetworkKey = "NETWORK"
	// DBTypeKey is used to switch database type between those supported
	DBTypeKey = "DB_TYPE"
	// ExplorerUrlKey is the base url of the esplora REST API
	ExplorerUrlKey = "EXPLORER_URL"
	// ExplorerRequestsPerSecondKey caps the requests made to the explorer
	ExplorerRequestsPerSecondKey = "EXPLORER_RPS"
	// MinRelayFeeKey is the min relay fee rate in sat/vB
	MinRelayFeeKey = "MIN_RELAY_FEE"
	// DustThresholdKey is the amount in sats below which outputs are dust
	DustThresholdKey = "DUST_THRESHOLD"
	// FeeStrategyKey is one of economical, conservative, custom
	FeeStrategyKey = "FEE_STRATEGY"
	// CustomFeeRateKey is the rate in sat/vB used by the custom fee strategy
	CustomFeeRateKey = "CUSTOM_FEE_RATE"
	// CoinSelectionKey is one of largest-first, random
	CoinSelectionKey = "COIN_SELECTION"
	// EnableMetricsKey enables the prometheus counters and the memory
	// statistics logger
	EnableMetricsKey = "ENABLE_METRICS"
	// StatsIntervalKey defines interval for printing memory statistics
	StatsIntervalKey = "STATS_INTERVAL"

	DbLocation      = "db"
	MetricsLocation = "stats"

	DBBadger   = "badger"
	DBInMemory = "inmemory"
)

var (
	vip            *viper.Viper
	defaultDatadir = btcutil.AppDataDir("btcvault", false)

	supportedDBTypes = map[string]bool{
		DBBadger:   true,
		DBInMemory: true,
	}
)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("BTCVAULT")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, int(log.InfoLevel))
	vip.SetDefault(NetworkKey, chaincfg.MainNetParams.Name)
	vip.SetDefault(DBTypeKey, DBBadger)
	vip.SetDefault(ExplorerUrlKey, "https://blockstream.info/api")
	vip.SetDefault(ExplorerRequestsPerSecondKey, 10)
	vip.SetDefault(MinRelayFeeKey, 1.0)
	vip.SetDefault(DustThresholdKey, 546)
	vip.SetDefault(FeeStrategyKey, feeestimator.Economical.String())
	vip.SetDefault(CoinSelectionKey, coinselect.LargestFirst.String())
	vip.SetDefault(EnableMetricsKey, false)
	vip.SetDefault(StatsIntervalKey, 600)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	log.SetLevel(log.Level(GetInt(LogLevelKey)))

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func Set(key string, value interface{}) {
	vip.Set(key, value)
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetDbDir returns the directory of the badger database, or an empty string
// for the in-memory one.
func GetDbDir() string {
	if GetString(DBTypeKey) == DBInMemory {
		return ""
	}
	return filepath.Join(GetDatadir(), DbLocation)
}

func GetNetwork() *chaincfg.Params {
	net, _ := wallet.NetworkFromName(GetString(NetworkKey))
	return net
}

func GetMinRelayFee() feeestimator.SatPerKVByte {
	return feeestimator.FromSatPerVByte(GetFloat(MinRelayFeeKey))
}

func GetFeeEstimatorConfig() feeestimator.Config {
	strategy, _ := feeestimator.ParseStrategy(GetString(FeeStrategyKey))
	return feeestimator.Config{
		MinRelayFee: GetMinRelayFee(),
		Strategy:    strategy,
		CustomRate:  feeestimator.FromSatPerVByte(GetFloat(CustomFeeRateKey)),
	}
}

func GetCoinSelectionPolicy() coinselect.Policy {
	policy, _ := coinselect.ParsePolicy(GetString(CoinSelectionKey))
	return policy
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if lvl := GetInt(LogLevelKey); lvl < int(log.PanicLevel) || lvl > int(log.TraceLevel) {
		return fmt.Errorf("%s must be in range [%d, %d]",
			LogLevelKey, log.PanicLevel, log.TraceLevel)
	}

	if _, err := wallet.NetworkFromName(GetString(NetworkKey)); err != nil {
		return err
	}

	dbType := strings.ToLower(GetString(DBTypeKey))
	if !supportedDBTypes[dbType] {
		return fmt.Errorf("unsupported db type %q", dbType)
	}
	vip.Set(DBTypeKey, dbType)

	if GetInt(ExplorerRequestsPerSecondKey) <= 0 {
		return fmt.Errorf("%s must be greater than 0", ExplorerRequestsPerSecondKey)
	}

	if GetFloat(MinRelayFeeKey) <= 0 {
		return fmt.Errorf("%s must be greater than 0", MinRelayFeeKey)
	}

	if GetInt(DustThresholdKey) < 0 {
		return fmt.Errorf("%s must not be negative", DustThresholdKey)
	}

	strategy, err := feeestimator.ParseStrategy(GetString(FeeStrategyKey))
	if err != nil {
		return err
	}
	if strategy == feeestimator.Custom && GetFloat(CustomFeeRateKey) <= 0 {
		return fmt.Errorf(
			"%s requires %s to be greater than 0", strategy, CustomFeeRateKey,
		)
	}

	if _, err := coinselect.ParsePolicy(GetString(CoinSelectionKey)); err != nil {
		return err
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if dbDir := GetDbDir(); dbDir != "" {
		if err := makeDirectoryIfNotExists(dbDir); err != nil {
			return err
		}
	}

	if GetBool(EnableMetricsKey) {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, MetricsLocation)); err != nil {
			return err
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
