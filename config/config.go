package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	AllowedOrigins     []string
	AdminUsernames     []string
	FrontendBaseURL    string
	RateLimitPerMinute int
	PolicyVersion      string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database (mysql or postgres)
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	// Redis for markers, tokens and throttles
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Social login
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectBase  string
	// SMTP for password reset mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Media host
	MediaProvider         string
	CloudinaryURL         string
	CloudinaryCloudName   string
	CloudinaryAPIKey      string
	CloudinaryAPISecret   string
	MinioEndpoint         string
	MinioAccessKey        string
	MinioSecretKey        string
	MinioBucket           string
	MinioUseSSL           bool
	MinioPublicBaseURL    string
	MaxUploadMB           int
	MediaDeleteTimeoutSec int
	// View counting
	ViewDedupSeconds int
	MarkerBackend    string
	// Tokens
	AccessTokenMinutes      int
	RefreshTokenDays        int
	PasswordResetTTLMinutes int
	// Registration security
	RegisterCaptchaEnabled     bool
	RegisterMaxPerIPPerDay     int
	RegisterAttemptCooldownSec int
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> .env -> environment variable overrides
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("ignoring invalid config/config.json: %v", err)
	}

	applyDefaults(&cfg)

	// .env never overrides variables already present in the process environment
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads grouped JSON sections into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if f, ok := m[key].(float64); ok {
			return int(f)
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}
	section := func(name string) map[string]any {
		m, _ := raw[name].(map[string]any)
		return m
	}

	if app := section("app"); app != nil {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.FrontendBaseURL = getString(app, "FrontendBaseURL")
		out.PolicyVersion = getString(app, "PolicyVersion")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		out.AdminUsernames = getStringSlice(app, "AdminUsernames")
		out.GinMode = getString(app, "GinMode")
		out.GinPath = getString(app, "GinPath")
	}

	if dbs := section("database"); dbs != nil {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.DBSSLMode = getString(dbs, "SSLMode")
	}

	if rds := section("redis"); rds != nil {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if oa := section("oauth"); oa != nil {
		out.GoogleClientID = getString(oa, "GoogleClientID")
		out.GoogleClientSecret = getString(oa, "GoogleClientSecret")
		out.OAuthRedirectBase = getString(oa, "OAuthRedirectBase")
	}

	if sm := section("smtp"); sm != nil {
		out.SMTPHost = getString(sm, "SMTPHost")
		out.SMTPPort = getInt(sm, "SMTPPort")
		out.SMTPUsername = getString(sm, "SMTPUsername")
		out.SMTPPassword = getString(sm, "SMTPPassword")
		out.SMTPFrom = getString(sm, "SMTPFrom")
		out.SMTPFromName = getString(sm, "SMTPFromName")
		out.SMTPTLS = getBool(sm, "SMTPTLS")
	}

	if lg := section("log"); lg != nil {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if md := section("media"); md != nil {
		out.MediaProvider = getString(md, "Provider")
		out.CloudinaryURL = getString(md, "CloudinaryURL")
		out.CloudinaryCloudName = getString(md, "CloudName")
		out.CloudinaryAPIKey = getString(md, "APIKey")
		out.CloudinaryAPISecret = getString(md, "APISecret")
		out.MinioEndpoint = getString(md, "MinioEndpoint")
		out.MinioAccessKey = getString(md, "MinioAccessKey")
		out.MinioSecretKey = getString(md, "MinioSecretKey")
		out.MinioBucket = getString(md, "MinioBucket")
		out.MinioUseSSL = getBool(md, "MinioUseSSL")
		out.MinioPublicBaseURL = getString(md, "MinioPublicBaseURL")
		out.MaxUploadMB = getInt(md, "MaxUploadMB")
		out.MediaDeleteTimeoutSec = getInt(md, "DeleteTimeoutSeconds")
	}

	if vw := section("views"); vw != nil {
		out.ViewDedupSeconds = getInt(vw, "DedupSeconds")
		out.MarkerBackend = getString(vw, "MarkerBackend")
	}

	if au := section("auth"); au != nil {
		out.AccessTokenMinutes = getInt(au, "AccessTokenMinutes")
		out.RefreshTokenDays = getInt(au, "RefreshTokenDays")
		out.PasswordResetTTLMinutes = getInt(au, "PasswordResetTTLMinutes")
	}

	if rg := section("register"); rg != nil {
		out.RegisterCaptchaEnabled = getBool(rg, "CaptchaEnabled")
		out.RegisterMaxPerIPPerDay = getInt(rg, "MaxPerIPPerDay")
		out.RegisterAttemptCooldownSec = getInt(rg, "AttemptCooldownSec")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8000"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.FrontendBaseURL == "" {
		c.FrontendBaseURL = "http://localhost:3000"
	}
	if c.PolicyVersion == "" {
		c.PolicyVersion = "1.0"
	}
	if c.OAuthRedirectBase == "" {
		c.OAuthRedirectBase = "http://localhost:8000"
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		if c.DBDriver == "postgres" {
			c.DBPort = "5432"
		} else {
			c.DBPort = "3306"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "board"
	}
	if c.DBSSLMode == "" {
		c.DBSSLMode = "disable"
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.MediaProvider == "" {
		c.MediaProvider = "cloudinary"
	}
	if c.MinioBucket == "" {
		c.MinioBucket = "images"
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = 5
	}
	if c.MediaDeleteTimeoutSec == 0 {
		c.MediaDeleteTimeoutSec = 10
	}
	if c.ViewDedupSeconds == 0 {
		c.ViewDedupSeconds = 5
	}
	if c.MarkerBackend == "" {
		c.MarkerBackend = "redis"
	}
	if c.AccessTokenMinutes == 0 {
		c.AccessTokenMinutes = 60
	}
	if c.RefreshTokenDays == 0 {
		c.RefreshTokenDays = 7
	}
	if c.PasswordResetTTLMinutes == 0 {
		c.PasswordResetTTLMinutes = 3 * 24 * 60
	}
	if c.RegisterMaxPerIPPerDay == 0 {
		c.RegisterMaxPerIPPerDay = 5
	}
	if c.RegisterAttemptCooldownSec == 0 {
		c.RegisterAttemptCooldownSec = 10
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	strs := map[string]*string{
		"APP_PORT":              &c.AppPort,
		"JWT_SECRET":            &c.JWTSecret,
		"FRONTEND_BASE_URL":     &c.FrontendBaseURL,
		"POLICY_VERSION":        &c.PolicyVersion,
		"GIN_MODE":              &c.GinMode,
		"GIN_PATH":              &c.GinPath,
		"DB_DRIVER":             &c.DBDriver,
		"DATABASE_URL":          &c.DatabaseURI,
		"DATABASE_URI":          &c.DatabaseURI,
		"DB_HOST":               &c.DBHost,
		"DB_PORT":               &c.DBPort,
		"DB_USER":               &c.DBUser,
		"DB_PASSWORD":           &c.DBPassword,
		"DB_NAME":               &c.DBName,
		"DB_SSLMODE":            &c.DBSSLMode,
		"REDIS_HOST":            &c.RedisHost,
		"REDIS_PASSWORD":        &c.RedisPassword,
		"GOOGLE_CLIENT_ID":      &c.GoogleClientID,
		"GOOGLE_CLIENT_SECRET":  &c.GoogleClientSecret,
		"OAUTH_REDIRECT_BASE":   &c.OAuthRedirectBase,
		"SMTP_HOST":             &c.SMTPHost,
		"SMTP_USERNAME":         &c.SMTPUsername,
		"SMTP_PASSWORD":         &c.SMTPPassword,
		"SMTP_FROM":             &c.SMTPFrom,
		"SMTP_FROM_NAME":        &c.SMTPFromName,
		"LOG_LEVEL":             &c.LogLevel,
		"LOG_PATH":              &c.LogPath,
		"MEDIA_PROVIDER":        &c.MediaProvider,
		"CLOUDINARY_URL":        &c.CloudinaryURL,
		"CLOUDINARY_CLOUD_NAME": &c.CloudinaryCloudName,
		"CLOUDINARY_API_KEY":    &c.CloudinaryAPIKey,
		"CLOUDINARY_API_SECRET": &c.CloudinaryAPISecret,
		"MINIO_ENDPOINT":        &c.MinioEndpoint,
		"MINIO_ACCESS_KEY":      &c.MinioAccessKey,
		"MINIO_SECRET_KEY":      &c.MinioSecretKey,
		"MINIO_BUCKET":          &c.MinioBucket,
		"MINIO_PUBLIC_BASE_URL": &c.MinioPublicBaseURL,
		"VIEW_MARKER_BACKEND":   &c.MarkerBackend,
	}
	for key, dst := range strs {
		if v := getEnv(key, ""); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RATE_LIMIT_PER_MINUTE":         &c.RateLimitPerMinute,
		"REDIS_PORT":                    &c.RedisPort,
		"REDIS_DB":                      &c.RedisDB,
		"SMTP_PORT":                     &c.SMTPPort,
		"LOG_MAX_SIZE_MB":               &c.LogMaxSizeMB,
		"LOG_MAX_BACKUPS":               &c.LogMaxBackups,
		"LOG_MAX_AGE_DAYS":              &c.LogMaxAgeDays,
		"MAX_UPLOAD_MB":                 &c.MaxUploadMB,
		"MEDIA_DELETE_TIMEOUT_SEC":      &c.MediaDeleteTimeoutSec,
		"VIEW_DEDUP_SECONDS":            &c.ViewDedupSeconds,
		"ACCESS_TOKEN_MINUTES":          &c.AccessTokenMinutes,
		"REFRESH_TOKEN_DAYS":            &c.RefreshTokenDays,
		"PASSWORD_RESET_TTL_MINUTES":    &c.PasswordResetTTLMinutes,
		"REGISTER_MAX_PER_IP_PER_DAY":   &c.RegisterMaxPerIPPerDay,
		"REGISTER_ATTEMPT_COOLDOWN_SEC": &c.RegisterAttemptCooldownSec,
	}
	for key, dst := range ints {
		if v := getEnv(key, ""); v != "" {
			*dst = mustParseInt(v)
		}
	}

	bools := map[string]*bool{
		"SMTP_TLS":                 &c.SMTPTLS,
		"LOG_COMPRESS":             &c.LogCompress,
		"MINIO_USE_SSL":            &c.MinioUseSSL,
		"REGISTER_CAPTCHA_ENABLED": &c.RegisterCaptchaEnabled,
	}
	for key, dst := range bools {
		if v := getEnv(key, ""); v != "" {
			*dst = v == "true"
		}
	}

	c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	c.AdminUsernames = readListEnv("ADMIN_USERNAMES", c.AdminUsernames)
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaults
	}
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
