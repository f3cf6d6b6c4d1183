package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Embed     EmbedConfig     `mapstructure:"embed"`
	VectorDB  VectorDBConfig  `mapstructure:"vectordb"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"` // 服务器主机
	Port int    `mapstructure:"port"` // 服务器端口
}

// ChunkerConfig 分块器配置
type ChunkerConfig struct {
	Type                string  `mapstructure:"type"`                 // 分块器类型：semantic 或 window
	MaxChunkSize        int     `mapstructure:"max_chunk_size"`       // 分块大小上限（字节数）
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"` // 语义合并的相似度阈值
	BatchSize           int     `mapstructure:"batch_size"`           // 句子向量化批处理大小
	MaxWorkers          int     `mapstructure:"max_workers"`          // 向量化批处理并行度
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string `mapstructure:"provider"`    // 提供商：openai 或 azure
	Model      string `mapstructure:"model"`       // 模型名称
	APIKey     string `mapstructure:"api_key"`     // API密钥
	Endpoint   string `mapstructure:"endpoint"`    // API端点
	BatchSize  int    `mapstructure:"batch_size"`  // 批处理大小
	Dimensions int    `mapstructure:"dimensions"`  // 向量维度
	MaxRetries int    `mapstructure:"max_retries"` // 暂态错误最大重试次数
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type     string `mapstructure:"type"`     // 向量数据库类型：faiss 或 memory
	Path     string `mapstructure:"path"`     // 索引文件路径
	Dim      int    `mapstructure:"dim"`      // 向量维度
	Distance string `mapstructure:"distance"` // 距离度量方式：cosine, l2, dot
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	TopK     int     `mapstructure:"top_k"`     // 默认返回结果数
	MinScore float32 `mapstructure:"min_score"` // 最低相似度分数
}

// CacheConfig 检索缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`   // 是否启用缓存
	Type     string `mapstructure:"type"`     // 缓存类型：memory 或 redis
	Address  string `mapstructure:"address"`  // Redis地址
	Password string `mapstructure:"password"` // Redis密码
	DB       int    `mapstructure:"db"`       // Redis数据库
	TTL      int    `mapstructure:"ttl"`      // 缓存TTL（秒）
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // 数据库类型，目前仅支持sqlite
	DSN  string `mapstructure:"dsn"`  // 数据源名称
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	File       string `mapstructure:"file"`        // 日志文件路径，为空则输出到stdout
	MaxSize    int    `mapstructure:"max_size"`    // 单个日志文件大小上限（MB）
	MaxBackups int    `mapstructure:"max_backups"` // 保留的旧日志文件数量
	MaxAge     int    `mapstructure:"max_age"`     // 日志保留天数
}

// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	var config Config

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		// 找不到配置文件时用默认值启动，并写出一份默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			log.Printf("Warning: Config file not found at %s, using defaults", configPath)
			setDefaults(v)
			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err == nil {
				if err := v.WriteConfigAs(configPath); err != nil {
					log.Printf("Warning: Could not write default config to %s: %v", configPath, err)
				}
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	setDefaults(v)

	// 支持环境变量覆盖
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	expandEnvironmentVariables(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 校验配置的合法性
// 非法的分块大小和检索数量在启动时就失败，不留到请求时
func (c *Config) Validate() error {
	if c.Chunker.MaxChunkSize <= 0 {
		return fmt.Errorf("chunker.max_chunk_size must be positive, got %d", c.Chunker.MaxChunkSize)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.VectorDB.Dim <= 0 {
		return fmt.Errorf("vectordb.dim must be positive, got %d", c.VectorDB.Dim)
	}
	return nil
}

// expandEnvironmentVariables 处理形如${VAR}的配置值
func expandEnvironmentVariables(cfg *Config) {
	if strings.HasPrefix(cfg.Embed.APIKey, "${") && strings.HasSuffix(cfg.Embed.APIKey, "}") {
		envVar := cfg.Embed.APIKey[2 : len(cfg.Embed.APIKey)-1]
		if envVal := os.Getenv(envVar); envVal != "" {
			cfg.Embed.APIKey = envVal
		}
	}
	if strings.HasPrefix(cfg.Cache.Password, "${") && strings.HasSuffix(cfg.Cache.Password, "}") {
		envVar := cfg.Cache.Password[2 : len(cfg.Cache.Password)-1]
		if envVal := os.Getenv(envVar); envVal != "" {
			cfg.Cache.Password = envVal
		}
	}
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// 分块器默认配置
	v.SetDefault("chunker.type", "semantic")
	v.SetDefault("chunker.max_chunk_size", 500)
	v.SetDefault("chunker.similarity_threshold", 0.5)
	v.SetDefault("chunker.batch_size", 16)
	v.SetDefault("chunker.max_workers", 4)

	// Embedding默认配置
	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.endpoint", "https://api.openai.com/v1")
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.dimensions", 1536)
	v.SetDefault("embed.max_retries", 3)

	// 向量数据库默认配置
	v.SetDefault("vectordb.type", "faiss")
	v.SetDefault("vectordb.path", "./data/vectors.index")
	v.SetDefault("vectordb.dim", 1536)
	v.SetDefault("vectordb.distance", "cosine")

	// 检索默认配置
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.min_score", 0.0)

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.ttl", 1800) // 30分钟

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/splitter.db")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
}
