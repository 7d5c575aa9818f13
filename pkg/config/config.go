package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Milvus    MilvusConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
	Chunking  ChunkingConfig
	Retrieval RetrievalConfig
	Corpus    CorpusConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	IndexType      string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	Dimensions int
	BatchSize  int
	Normalize  bool
	CacheDir   string
	TimeoutSec int
}

type ChunkingConfig struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

type RetrievalConfig struct {
	DefaultNResults  int
	MinSimilarity    float64
	RelaxableFilters []string
	MaxContextTokens int
}

type CorpusConfig struct {
	Dirs []string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/regdoc-agent")

	viper.SetEnvPrefix("REGDOC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "regdoc_knowledge")
	viper.SetDefault("milvus.indexType", "HNSW")

	viper.SetDefault("sqlite.path", "./data/regdoc.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 300)

	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)
	viper.SetDefault("embedding.batchSize", 100)
	viper.SetDefault("embedding.normalize", true)
	viper.SetDefault("embedding.cacheDir", "./data/embedding_cache")
	viper.SetDefault("embedding.timeoutSec", 30)

	viper.SetDefault("chunking.chunkSize", 500)
	viper.SetDefault("chunking.chunkOverlap", 50)
	viper.SetDefault("chunking.minChunkSize", 50)

	viper.SetDefault("retrieval.defaultNResults", 5)
	viper.SetDefault("retrieval.minSimilarity", 0.0)
	viper.SetDefault("retrieval.relaxableFilters", []string{"year"})
	viper.SetDefault("retrieval.maxContextTokens", 2000)

	viper.SetDefault("corpus.dirs", []string{"./knowledge_base"})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
