package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Configuration specifies the static application config.
type Configuration struct {
	ExternalURL    string `mapstructure:"external_url"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	AdminPort      int    `mapstructure:"admin_port"`
	EnableGzip     bool   `mapstructure:"enable_gzip"`
	StatusResponse string `mapstructure:"status_response"`

	Client            HTTPClient         `mapstructure:"http_client"`
	CacheClient       HTTPClient         `mapstructure:"http_client_cache"`
	AuctionTimeouts   AuctionTimeouts    `mapstructure:"auction_timeouts_ms"`
	CacheURL          Cache              `mapstructure:"cache"`
	Metrics           Metrics            `mapstructure:"metrics"`
	Debug             Debug              `mapstructure:"debug"`
	GenerateBidID     BidIDGenerator     `mapstructure:"bid_id_generator"`
	Targeting         Targeting          `mapstructure:"targeting"`
	CurrencyConverter CurrencyConverter  `mapstructure:"currency_converter"`
	GDPR              GDPR               `mapstructure:"gdpr"`
	CCPA              CCPA               `mapstructure:"ccpa"`
	RequestValidation RequestValidation  `mapstructure:"request_validation"`
	Adapters          map[string]Adapter `mapstructure:"adapters"`
	StoredRequests    StoredRequests     `mapstructure:"stored_requests"`
	PriceFloors       PriceFloors        `mapstructure:"price_floors"`
	Hooks             Hooks              `mapstructure:"hooks"`

	// AccountRequired rejects requests which do not carry a publisher id.
	AccountRequired bool `mapstructure:"account_required"`
	// BlockedAccounts lists account ids the host refuses to serve.
	BlockedAccounts []string `mapstructure:"blocked_accounts"`
	// AccountDefaults defines default settings for valid accounts that are partially defined
	// and provides a way to set global settings that can be overridden at account level.
	AccountDefaults Account `mapstructure:"account_defaults"`
	// accountDefaultsJSON is the JSON serialization of AccountDefaults for fast merging
	accountDefaultsJSON []byte
}

// AuctionTimeouts bounds the tmax of incoming requests and controls how it is divided among bidders.
type AuctionTimeouts struct {
	// The default timeout is used if the user's request didn't define one. Use 0 if there's no default.
	Default int64 `mapstructure:"default"`
	// Max is the largest timeout a request may ask for.
	Max int64 `mapstructure:"max"`
	// Min is the floor of every computed timeout.
	Min int64 `mapstructure:"min"`
	// ProcessingOverhead is deducted from the request timeout to leave room for response assembly.
	ProcessingOverhead int64 `mapstructure:"processing_overhead"`
	// BidderResponseDurationFactorPct is the share of a bidder's slice held back for network latency.
	BidderResponseDurationFactorPct int `mapstructure:"bidder_response_duration_factor_pct"`
}

func (cfg *AuctionTimeouts) validate(errs []error) []error {
	if cfg.Min <= 0 {
		errs = append(errs, fmt.Errorf("auction_timeouts_ms.min must be positive. Got %d", cfg.Min))
	}
	if cfg.Max < cfg.Min {
		errs = append(errs, fmt.Errorf("auction_timeouts_ms.max cannot be less than auction_timeouts_ms.min. Got max %d, min %d", cfg.Max, cfg.Min))
	}
	if cfg.Default > cfg.Max {
		errs = append(errs, fmt.Errorf("auction_timeouts_ms.default cannot be greater than auction_timeouts_ms.max. Got default %d, max %d", cfg.Default, cfg.Max))
	}
	if cfg.BidderResponseDurationFactorPct < 0 || cfg.BidderResponseDurationFactorPct > 100 {
		errs = append(errs, fmt.Errorf("auction_timeouts_ms.bidder_response_duration_factor_pct must be between 0 and 100. Got %d", cfg.BidderResponseDurationFactorPct))
	}
	return errs
}

// HTTPClient sizes the connection pool of an outgoing http client.
type HTTPClient struct {
	MaxConnsPerHost     int `mapstructure:"max_connections_per_host"`
	MaxIdleConns        int `mapstructure:"max_idle_connections"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_connections_per_host"`
	// IdleConnTimeout is in seconds.
	IdleConnTimeout int `mapstructure:"idle_connection_timeout_seconds"`
}

// Cache locates the Prebid Cache server.
type Cache struct {
	Scheme string `mapstructure:"scheme"`
	Host   string `mapstructure:"host"`
	Path   string `mapstructure:"path"`
	Query  string `mapstructure:"query"`
	// ExpectedTimeMillis is subtracted from the bidder deadline so there is time left to cache bids.
	ExpectedTimeMillis int `mapstructure:"expected_millis"`
	// DefaultTTLs are used when the bid does not carry its own exp.
	DefaultTTLs DefaultTTLs `mapstructure:"default_ttl_seconds"`
}

// DefaultTTLs are the cache ttl seconds per media type.
type DefaultTTLs struct {
	Banner int `mapstructure:"banner" json:"banner"`
	Video  int `mapstructure:"video" json:"video"`
	Native int `mapstructure:"native" json:"native"`
	Audio  int `mapstructure:"audio" json:"audio"`
}

// GetBaseURL allows for protocol relative URL if scheme is empty
func (cfg *Cache) GetBaseURL() string {
	scheme := strings.ToLower(cfg.Scheme)
	if strings.Contains(scheme, "https") {
		return fmt.Sprintf("https://%s", cfg.Host)
	}
	if strings.Contains(scheme, "http") {
		return fmt.Sprintf("http://%s", cfg.Host)
	}
	return fmt.Sprintf("//%s", cfg.Host)
}

// GetPutURL is the endpoint bids are written to.
func (cfg *Cache) GetPutURL() string {
	return cfg.GetBaseURL() + "/cache"
}

// GetCachedAssetURL builds the url a cached creative can be fetched from.
func (cfg *Cache) GetCachedAssetURL(uuid string) string {
	return fmt.Sprintf("%s/cache?%s", cfg.GetBaseURL(), strings.Replace(cfg.Query, "%PBS_CACHE_UUID%", uuid, 1))
}

// Metrics selects and configures the metrics engines.
type Metrics struct {
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
	GoMetrics  GoMetrics         `mapstructure:"go_metrics"`
	Disabled   DisabledMetrics   `mapstructure:"disabled_metrics"`
}

type PrometheusMetrics struct {
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

type GoMetrics struct {
	Enabled bool `mapstructure:"enabled"`
}

type DisabledMetrics struct {
	// True if we want to stop collecting account-level metrics
	AccountAdapterDetails bool `mapstructure:"account_adapter_details"`
}

// Debug controls whether debug output may be returned at all.
type Debug struct {
	Allow bool `mapstructure:"allow"`
}

// BidIDGenerator selects how ext.prebid.bidid is filled in.
type BidIDGenerator struct {
	Type string `mapstructure:"type"`
}

const (
	BidIDGeneratorUUID = "uuid"
	BidIDGeneratorNone = "none"
)

// Targeting carries server wide targeting defaults.
type Targeting struct {
	TruncateAttrChars int `mapstructure:"truncate_attr_chars"`
}

// CurrencyConverter holds the server side conversion rates used when the request carries none.
type CurrencyConverter struct {
	Rates map[string]map[string]float64 `mapstructure:"rates"`
}

type GDPR struct {
	Enabled bool `mapstructure:"enabled"`
	// DefaultValue is the gdpr signal assumed when the request carries none, "0" or "1".
	DefaultValue string `mapstructure:"default_value"`
}

type CCPA struct {
	Enforce bool `mapstructure:"enforce"`
}

// RequestValidation holds the rules applied to incoming requests.
type RequestValidation struct {
	// StrictAppSiteDooh rejects requests with more than one of app, site and dooh.
	StrictAppSiteDooh bool `mapstructure:"strict_app_site_dooh"`
}

// Adapter holds the host level settings of one bidder.
type Adapter struct {
	Endpoint string `mapstructure:"endpoint"`
	Disabled bool   `mapstructure:"disabled"`
}

// PriceFloors sizes the background fetcher of dynamic floors files.
type PriceFloors struct {
	Enabled bool              `mapstructure:"enabled"`
	Fetcher PriceFloorFetcher `mapstructure:"fetcher"`
}

type PriceFloorFetcher struct {
	Worker   int `mapstructure:"worker"`
	Capacity int `mapstructure:"capacity"`
	// CacheCleanUpInt and CacheExpiry are in seconds.
	CacheCleanUpInt int `mapstructure:"cache_cleanup_int_sec"`
	CacheExpiry     int `mapstructure:"cache_expiry_sec"`
}

// StoredRequests points at the file backed stored data, category mappings included, and sizes the
// stored response cache.
type StoredRequests struct {
	Directory string `mapstructure:"directory"`
	// CacheSizeBytes of 0 disables the stored response cache.
	CacheSizeBytes int `mapstructure:"cache_size_bytes"`
	CacheTTLSec    int `mapstructure:"cache_ttl_sec"`
}

func (cfg *Configuration) validate() []error {
	var errs []error
	errs = cfg.AuctionTimeouts.validate(errs)
	if cfg.GenerateBidID.Type != BidIDGeneratorUUID && cfg.GenerateBidID.Type != BidIDGeneratorNone {
		errs = append(errs, fmt.Errorf("bid_id_generator.type must be one of %q or %q. Got %q", BidIDGeneratorUUID, BidIDGeneratorNone, cfg.GenerateBidID.Type))
	}
	if cfg.Targeting.TruncateAttrChars < 0 || cfg.Targeting.TruncateAttrChars > 255 {
		errs = append(errs, fmt.Errorf("targeting.truncate_attr_chars must be between 0 and 255. Got %d", cfg.Targeting.TruncateAttrChars))
	}
	if cfg.ExternalURL != "" {
		if _, err := url.Parse(cfg.ExternalURL); err != nil {
			errs = append(errs, fmt.Errorf("external_url is not a valid url: %v", err))
		}
	}
	if cfg.GDPR.DefaultValue != "0" && cfg.GDPR.DefaultValue != "1" {
		errs = append(errs, fmt.Errorf("gdpr.default_value must be 0 or 1. Got %q", cfg.GDPR.DefaultValue))
	}
	errs = cfg.AccountDefaults.validate(errs)
	return errs
}

// New uses viper to get our server configurations.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}

	if errs := c.validate(); len(errs) > 0 {
		return &c, errors.Join(errs...)
	}

	var err error
	if c.accountDefaultsJSON, err = c.AccountDefaults.marshal(); err != nil {
		return nil, fmt.Errorf("account_defaults could not be serialized: %v", err)
	}
	return &c, nil
}

// AccountDefaultsJSON returns the precompiled JSON form of account_defaults
func (cfg *Configuration) AccountDefaultsJSON() []byte {
	return cfg.accountDefaultsJSON
}

// SetupViper sets the defaults and reads the config file (if any) into v.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("external_url", "http://localhost:8000")
	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("enable_gzip", false)
	v.SetDefault("status_response", "")
	v.SetDefault("http_client.max_connections_per_host", 0)
	v.SetDefault("http_client.max_idle_connections", 400)
	v.SetDefault("http_client.max_idle_connections_per_host", 10)
	v.SetDefault("http_client.idle_connection_timeout_seconds", 60)
	v.SetDefault("http_client_cache.max_connections_per_host", 0)
	v.SetDefault("http_client_cache.max_idle_connections", 10)
	v.SetDefault("http_client_cache.max_idle_connections_per_host", 2)
	v.SetDefault("http_client_cache.idle_connection_timeout_seconds", 60)
	v.SetDefault("auction_timeouts_ms.default", 1000)
	v.SetDefault("auction_timeouts_ms.max", 5000)
	v.SetDefault("auction_timeouts_ms.min", 50)
	v.SetDefault("auction_timeouts_ms.processing_overhead", 100)
	v.SetDefault("auction_timeouts_ms.bidder_response_duration_factor_pct", 10)
	v.SetDefault("cache.scheme", "https")
	v.SetDefault("cache.host", "")
	v.SetDefault("cache.path", "/cache")
	v.SetDefault("cache.query", "uuid=%PBS_CACHE_UUID%")
	v.SetDefault("cache.expected_millis", 10)
	v.SetDefault("cache.default_ttl_seconds.banner", 300)
	v.SetDefault("cache.default_ttl_seconds.video", 1500)
	v.SetDefault("cache.default_ttl_seconds.native", 300)
	v.SetDefault("cache.default_ttl_seconds.audio", 300)
	v.SetDefault("metrics.prometheus.port", 0)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")
	v.SetDefault("metrics.go_metrics.enabled", false)
	v.SetDefault("metrics.disabled_metrics.account_adapter_details", false)
	v.SetDefault("debug.allow", true)
	v.SetDefault("bid_id_generator.type", BidIDGeneratorNone)
	v.SetDefault("targeting.truncate_attr_chars", 20)
	v.SetDefault("gdpr.enabled", true)
	v.SetDefault("gdpr.default_value", "1")
	v.SetDefault("ccpa.enforce", false)
	v.SetDefault("request_validation.strict_app_site_dooh", false)
	v.SetDefault("stored_requests.directory", "")
	v.SetDefault("stored_requests.cache_size_bytes", 10*1024*1024)
	v.SetDefault("stored_requests.cache_ttl_sec", 300)
	v.SetDefault("account_required", false)
	v.SetDefault("blocked_accounts", []string{})
	v.SetDefault("account_defaults.disabled", false)
	v.SetDefault("account_defaults.debug_allow", true)
	v.SetDefault("account_defaults.events.enabled", false)
	v.SetDefault("account_defaults.price_floors.enabled", true)
	v.SetDefault("account_defaults.price_floors.enforce_floors_rate", 100)
	v.SetDefault("account_defaults.price_floors.enforce_deal_floors", false)
	v.SetDefault("account_defaults.price_floors.adjust_for_bid_adjustment", true)
	v.SetDefault("account_defaults.price_floors.use_dynamic_data", false)
	v.SetDefault("account_defaults.price_floors.max_rules", 100)
	v.SetDefault("account_defaults.price_floors.fetch.enabled", false)
	v.SetDefault("account_defaults.price_floors.fetch.timeout_ms", 3000)
	v.SetDefault("account_defaults.price_floors.fetch.max_file_size_kb", 100)
	v.SetDefault("account_defaults.price_floors.fetch.max_rules", 1000)
	v.SetDefault("account_defaults.price_floors.fetch.max_age_sec", 86400)
	v.SetDefault("account_defaults.price_floors.fetch.period_sec", 3600)
	v.SetDefault("hooks.enabled", false)
	v.SetDefault("price_floors.enabled", true)
	v.SetDefault("price_floors.fetcher.worker", 20)
	v.SetDefault("price_floors.fetcher.capacity", 20000)
	v.SetDefault("price_floors.fetcher.cache_cleanup_int_sec", 3600)
	v.SetDefault("price_floors.fetcher.cache_expiry_sec", 86400)

	v.SetEnvPrefix("PBA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if filename != "" {
		v.ReadInConfig()
	}
}

// ReadConfig is a helper for tests and tools which feed a yaml document straight into viper.
func ReadConfig(v *viper.Viper, yamlConfig []byte) error {
	v.SetConfigType("yaml")
	return v.ReadConfig(bytes.NewBuffer(yamlConfig))
}
