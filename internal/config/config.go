// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Storage  StorageConfig  `mapstructure:"storage"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Download DownloadConfig `mapstructure:"download"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// MaxUploadMB 限制直接上传归档的大小。
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 存储共享密钥校验与访问令牌相关的配置。
type AuthConfig struct {
	// SharedSecretHash 是共享密钥的 bcrypt 哈希，明文不落盘。
	SharedSecretHash string `mapstructure:"shared_secret_hash"`
	JWTSecret        string `mapstructure:"jwt_secret"`
	TokenExpireHours int    `mapstructure:"token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不启用异步装配。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// StorageConfig 决定归档文件保存在哪里、解压到哪里。
type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // local 或 minio
	ArchiveDir  string `mapstructure:"archive_dir"`
	InstallRoot string `mapstructure:"install_root"`
	// SeedDir 下的 zip 会在启动时导入，相对路径的目录部分即安装目录。为空时跳过。
	SeedDir string `mapstructure:"seed_dir"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// DownloadConfig 存储远程下载相关的配置。
type DownloadConfig struct {
	BufferSize       int `mapstructure:"buffer_size"`
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MirrorIntervalMs int `mapstructure:"mirror_interval_ms"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_mb", 2048)
	v.SetDefault("auth.token_expire_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "archive-assembly")
	v.SetDefault("kafka.group_id", "archive-depot-assembler")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.archive_dir", "./data/archives")
	v.SetDefault("storage.install_root", "./data/install")
	v.SetDefault("minio.bucket_name", "archives")
	v.SetDefault("download.buffer_size", 32*1024)
	v.SetDefault("download.timeout_seconds", 0)
	v.SetDefault("download.mirror_interval_ms", 500)
}

// Load 读取 configPath 指向的 YAML 文件，未配置的项使用默认值。
// 环境变量 ARCHIVE_DEPOT_<SECTION>_<KEY> 可以覆盖文件中的值。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("archive_depot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if cfg.Storage.Backend != "local" && cfg.Storage.Backend != "minio" {
		return cfg, fmt.Errorf("不支持的存储后端: %q", cfg.Storage.Backend)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
