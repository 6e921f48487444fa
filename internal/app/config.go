package app

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the single immutable configuration snapshot resolved once at
// startup and handed to the supervisor. Every field corresponds to one
// row of the environment-variable table in §6.
type Config struct {
	HoneypotID  string
	APIKey      string
	APIEndpoint string
	DebugMode   bool
	OfflineMode bool

	HeartbeatInterval   time.Duration
	HeartbeatRetryCount int
	HeartbeatRetryDelay time.Duration

	ReportTimeout     time.Duration
	SpoolPath         string
	SpoolClearOnStart bool
	ReplayInterval    time.Duration

	MaxReportsPerIP       int
	IPCacheTTL            time.Duration
	StoreThrottledAttacks bool
	ReportUniqueTypesOnly bool

	HTTPPort           int
	HTTPSPort          int
	SSHPort            int
	FTPPort            int
	SMTPPort           int
	SMTPSubmissionPort int
	POP3Port           int
	IMAPPort           int
	MySQLPort          int

	EnableHTTP  bool
	EnableHTTPS bool
	EnableSSH   bool
	EnableFTP   bool
	EnableMail  bool
	EnableMySQL bool

	TLSCertFile string
	TLSKeyFile  string
	SSHKeyPath  string

	MetricsEnabled bool
	MetricsPort    string

	LureDir string
}

// bindings lists every environment variable this process reads, together
// with the viper key it is stored under. AutomaticEnv alone only binds
// keys that already exist in viper's default set under a matching name;
// an explicit per-key BindEnv makes the upper-snake-case names of §6
// authoritative without relying on a prefix/case transform.
var bindings = map[string]string{
	"honeypot_id":              "HONEYPOT_ID",
	"api_key":                  "API_KEY",
	"api_endpoint":             "API_ENDPOINT",
	"debug_mode":               "DEBUG_MODE",
	"offline_mode":             "OFFLINE_MODE",
	"heartbeat_interval_ms":    "HEARTBEAT_INTERVAL",
	"heartbeat_retry_count":    "HEARTBEAT_RETRY_COUNT",
	"heartbeat_retry_delay_ms": "HEARTBEAT_RETRY_DELAY",
	"report_timeout_ms":        "REPORT_TIMEOUT",
	"spool_path":               "SPOOL_PATH",
	"spool_clear_on_start":     "SPOOL_CLEAR_ON_START",
	"replay_interval_ms":       "REPLAY_INTERVAL",
	"max_reports_per_ip":       "MAX_REPORTS_PER_IP",
	"ip_cache_ttl_ms":          "IP_CACHE_TTL",
	"store_throttled_attacks":  "STORE_THROTTLED_ATTACKS",
	"report_unique_types_only": "REPORT_UNIQUE_TYPES_ONLY",
	"http_port":                "HTTP_PORT",
	"https_port":               "HTTPS_PORT",
	"ssh_port":                 "SSH_PORT",
	"ftp_port":                 "FTP_PORT",
	"smtp_port":                "SMTP_PORT",
	"smtp_submission_port":     "SMTP_SUBMISSION_PORT",
	"pop3_port":                "POP3_PORT",
	"imap_port":                "IMAP_PORT",
	"mysql_port":               "MYSQL_PORT",
	"enable_http":              "ENABLE_HTTP",
	"enable_https":             "ENABLE_HTTPS",
	"enable_ssh":               "ENABLE_SSH",
	"enable_ftp":               "ENABLE_FTP",
	"enable_mail":              "ENABLE_MAIL",
	"enable_mysql":             "ENABLE_MYSQL",
	"tls_cert_file":            "TLS_CERT_FILE",
	"tls_key_file":             "TLS_KEY_FILE",
	"ssh_key_path":             "SSH_KEY_PATH",
	"metrics_enabled":          "METRICS_ENABLED",
	"metrics_port":             "METRICS_PORT",
	"lure_dir":                 "LURE_DIR",
}

// setDefaults installs the typed defaults documented in §6, under the
// bare (unprefixed) keys bindings maps onto an environment variable name.
func setDefaults(v *viper.Viper) {
	v.SetDefault("honeypot_id", "test")
	v.SetDefault("api_key", "")
	v.SetDefault("api_endpoint", "http://localhost:3000/api")
	v.SetDefault("debug_mode", false)
	v.SetDefault("offline_mode", false)

	v.SetDefault("heartbeat_interval_ms", 60000)
	v.SetDefault("heartbeat_retry_count", 3)
	v.SetDefault("heartbeat_retry_delay_ms", 5000)

	v.SetDefault("report_timeout_ms", 5000)
	v.SetDefault("spool_path", "logs/offline_attacks.json")
	v.SetDefault("spool_clear_on_start", true)
	v.SetDefault("replay_interval_ms", 5*60*1000)

	v.SetDefault("max_reports_per_ip", 5)
	v.SetDefault("ip_cache_ttl_ms", 3600000)
	v.SetDefault("store_throttled_attacks", false)
	v.SetDefault("report_unique_types_only", false)

	v.SetDefault("http_port", 8080)
	v.SetDefault("https_port", 8443)
	v.SetDefault("ssh_port", 2222)
	v.SetDefault("ftp_port", 21)
	v.SetDefault("smtp_port", 25)
	v.SetDefault("smtp_submission_port", 587)
	v.SetDefault("pop3_port", 110)
	v.SetDefault("imap_port", 143)
	v.SetDefault("mysql_port", 3306)

	v.SetDefault("enable_http", true)
	v.SetDefault("enable_https", false)
	v.SetDefault("enable_ssh", true)
	v.SetDefault("enable_ftp", true)
	v.SetDefault("enable_mail", true)
	v.SetDefault("enable_mysql", true)

	v.SetDefault("tls_cert_file", "")
	v.SetDefault("tls_key_file", "")
	v.SetDefault("ssh_key_path", "keys/ssh_host_key")

	v.SetDefault("metrics_enabled", true)
	v.SetDefault("metrics_port", ":9090")

	v.SetDefault("lure_dir", ".")
}

// Resolve builds the process configuration from (in ascending priority)
// built-in defaults, an optional YAML file layered in by cfgFile, and the
// environment — env vars always win, matching §6's "driven entirely by
// environment variables" CLI contract. No hot-reload of any of these
// values is attempted; see lure_watch.go for the one setting this process
// does reload at runtime (lure-content banners, which are cosmetic).
func Resolve(cfgFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return Config{}, err
		}
	}

	v.AutomaticEnv()
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, err
		}
	}

	return Config{
		HoneypotID:  v.GetString("honeypot_id"),
		APIKey:      v.GetString("api_key"),
		APIEndpoint: v.GetString("api_endpoint"),
		DebugMode:   v.GetBool("debug_mode"),
		OfflineMode: v.GetBool("offline_mode"),

		HeartbeatInterval:   time.Duration(v.GetInt64("heartbeat_interval_ms")) * time.Millisecond,
		HeartbeatRetryCount: v.GetInt("heartbeat_retry_count"),
		HeartbeatRetryDelay: time.Duration(v.GetInt64("heartbeat_retry_delay_ms")) * time.Millisecond,

		ReportTimeout:     time.Duration(v.GetInt64("report_timeout_ms")) * time.Millisecond,
		SpoolPath:         v.GetString("spool_path"),
		SpoolClearOnStart: v.GetBool("spool_clear_on_start"),
		ReplayInterval:    time.Duration(v.GetInt64("replay_interval_ms")) * time.Millisecond,

		MaxReportsPerIP:       v.GetInt("max_reports_per_ip"),
		IPCacheTTL:            time.Duration(v.GetInt64("ip_cache_ttl_ms")) * time.Millisecond,
		StoreThrottledAttacks: v.GetBool("store_throttled_attacks"),
		ReportUniqueTypesOnly: v.GetBool("report_unique_types_only"),

		HTTPPort:           v.GetInt("http_port"),
		HTTPSPort:          v.GetInt("https_port"),
		SSHPort:            v.GetInt("ssh_port"),
		FTPPort:            v.GetInt("ftp_port"),
		SMTPPort:           v.GetInt("smtp_port"),
		SMTPSubmissionPort: v.GetInt("smtp_submission_port"),
		POP3Port:           v.GetInt("pop3_port"),
		IMAPPort:           v.GetInt("imap_port"),
		MySQLPort:          v.GetInt("mysql_port"),

		EnableHTTP:  v.GetBool("enable_http"),
		EnableHTTPS: v.GetBool("enable_https"),
		EnableSSH:   v.GetBool("enable_ssh"),
		EnableFTP:   v.GetBool("enable_ftp"),
		EnableMail:  v.GetBool("enable_mail"),
		EnableMySQL: v.GetBool("enable_mysql"),

		TLSCertFile: v.GetString("tls_cert_file"),
		TLSKeyFile:  v.GetString("tls_key_file"),
		SSHKeyPath:  v.GetString("ssh_key_path"),

		MetricsEnabled: v.GetBool("metrics_enabled"),
		MetricsPort:    v.GetString("metrics_port"),

		LureDir: v.GetString("lure_dir"),
	}, nil
}
