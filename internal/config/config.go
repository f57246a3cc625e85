// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストアのバックエンド種別
const (
	DriverMongo = "mongo"
	DriverRedis = "redis"
)

// Config はアプリケーションの設定を保持する構造体です。
// 起動時に一度だけ生成し、各コンポーネントへ注入します。
type Config struct {
	// サーバー設定
	Port     string // APIサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // logrus のログレベル

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、* で全許可）

	// 認証設定
	JWTSecret  string        // トークン署名用の秘密鍵（必須）
	TokenTTL   time.Duration // トークンの有効期間
	BcryptCost int           // パスワードハッシュのコスト

	// ストア設定
	StoreDriver          string        // mongo または redis
	MongoURI             string        // MongoDB接続文字列
	MongoDatabase        string        // MongoDBのデータベース名
	RedisURL             string        // Redis接続URL
	ConnectRetryInterval time.Duration // 起動時の接続リトライ間隔
	RequestTimeout       time.Duration // 1回のストア操作のタイムアウト
}

// Load は環境変数から設定を読み込みます。
// .env.local / .env ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:     getEnv("PORT", "3000"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		TokenTTL:   time.Duration(getEnvAsInt("TOKEN_TTL_MINUTES", 60)) * time.Minute,
		BcryptCost: getEnvAsInt("BCRYPT_COST", 10),

		StoreDriver:          strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
		MongoURI:             getEnv("MONGO_URI", ""),
		MongoDatabase:        getEnv("MONGO_DATABASE", "taskmanager"),
		RedisURL:             getEnv("REDIS_URL", ""),
		ConnectRetryInterval: time.Duration(getEnvAsInt("DB_RETRY_SECONDS", 5)) * time.Second,
		RequestTimeout:       time.Duration(getEnvAsInt("STORE_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	// godotenv.Load は既存の環境変数を上書きしない
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			continue
		}

		cwd, err := os.Getwd()
		if err != nil {
			continue
		}
		parent := filepath.Dir(cwd)
		if parent == "" || parent == cwd {
			continue
		}
		_ = godotenv.Load(filepath.Join(parent, name))
	}
}

// Validate は設定の妥当性を検証します。
// 署名鍵が無い状態では起動させません（デフォルト鍵では動作しない）。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL_MINUTES must be positive")
	}
	if c.ConnectRetryInterval <= 0 {
		return fmt.Errorf("DB_RETRY_SECONDS must be positive")
	}

	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER=%s", DriverMongo)
		}
	case DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_DRIVER=%s", DriverRedis)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %q", c.StoreDriver)
	}

	return nil
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
