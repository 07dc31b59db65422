package config

import (
	"database/sql"
	"errors"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"movement-analysis/constant"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	App      App           `yaml:"app"`
	Server   Server        `yaml:"server"`
	Storage  Storage       `yaml:"storage"`
	Cors     Cors          `yaml:"cors"`
	Pose     Pose          `yaml:"pose"`
	Analysis Analysis      `yaml:"analysis"`
	MinIO    MinIO         `yaml:"minio"`
	DB       *sql.DB       `yaml:"db"`
	Queue    *RabbitMQ     `yaml:"rabbitmq"`
	Objects  *minio.Client `yaml:"objects"`
}

type App struct {
	Environment string `yaml:"environment"`
	BaseDir     string `yaml:"base_dir"`
}

func (a App) Env() constant.Environment {
	return constant.Environment(a.Environment)
}

type Server struct {
	HttpPort          string        `yaml:"http_port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

type Storage struct {
	UploadDir    string `yaml:"upload_dir"`
	PublicPrefix string `yaml:"public_prefix"`
}

type Cors struct {
	MarkerFile  string `yaml:"marker_file"`
	LocalOrigin string `yaml:"local_origin"`
}

type Pose struct {
	ModelPath              string  `yaml:"model_path"`
	InputSize              int     `yaml:"input_size"`
	LandmarksOutput        string  `yaml:"landmarks_output"`
	FlagOutput             string  `yaml:"flag_output"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
}

type Analysis struct {
	MaxSamples int    `yaml:"max_samples"`
	Codec      string `yaml:"codec"`
}

type MinIO struct {
	Enabled bool   `yaml:"enabled"`
	Url     string `yaml:"url"`
	Bucket  string `yaml:"bucket"`
	UseSSL  bool   `yaml:"use_ssl"`
}

type RabbitMQ struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", constant.EnvironmentDevelop.String())
	v.SetDefault("app.base_dir", ".")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.public_prefix", "/uploads")
	v.SetDefault("cors.marker_file", ".cors.json")
	v.SetDefault("cors.local_origin", "http://localhost:5173")
	v.SetDefault("pose.model_path", "models/pose_landmark_full.onnx")
	v.SetDefault("pose.input_size", 256)
	v.SetDefault("pose.landmarks_output", "Identity")
	v.SetDefault("pose.flag_output", "Identity_1")
	v.SetDefault("pose.min_detection_confidence", 0.5)
	v.SetDefault("pose.min_tracking_confidence", 0.5)
	v.SetDefault("analysis.max_samples", 3)
	v.SetDefault("analysis.codec", "mp4v")
	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.bucket", "uploads")
	v.SetDefault("postgresql_host", "")
	v.SetDefault("rabbitmq.enabled", false)
	v.SetDefault("rabbitmq_host", "localhost")
	v.SetDefault("rabbitmq_port", 5672)
	v.SetDefault("rabbitmq_kind", "topic")
	v.SetDefault("rabbitmq.exchange", "analysis_exchange")
}

// Load reads config.yaml from path. A missing file is not an error; defaults
// and MOVEMENT_* environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("movement")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	baseDir := v.GetString("app.base_dir")
	if !filepath.IsAbs(baseDir) {
		baseDir = filepath.Join(path, baseDir)
	}
	uploadDir := v.GetString("storage.upload_dir")
	if !filepath.IsAbs(uploadDir) {
		uploadDir = filepath.Join(baseDir, uploadDir)
	}
	modelPath := v.GetString("pose.model_path")
	if !filepath.IsAbs(modelPath) {
		modelPath = filepath.Join(baseDir, modelPath)
	}

	var db *sql.DB
	if dsn := v.GetString("postgresql_host"); dsn != "" {
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
	}

	minioCfg := MinIO{
		Enabled: v.GetBool("minio.enabled"),
		Url:     v.GetString("minio.url"),
		Bucket:  v.GetString("minio.bucket"),
		UseSSL:  v.GetBool("minio.use_ssl"),
	}

	var minioClient *minio.Client
	if minioCfg.Enabled {
		minioClient, err = minio.New(minioCfg.Url, &minio.Options{
			Creds:  credentials.NewStaticV4(v.GetString("minio.access_id"), v.GetString("minio.secret_access_key"), ""),
			Secure: minioCfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
	}

	rabbitmq := &RabbitMQ{
		Enabled:      v.GetBool("rabbitmq.enabled"),
		Host:         v.GetString("rabbitmq_host"),
		Port:         v.GetInt("rabbitmq_port"),
		User:         v.GetString("rabbitmq_user"),
		Pass:         v.GetString("rabbitmq_pass"),
		ExchangeName: v.GetString("rabbitmq.exchange"),
		Kind:         v.GetString("rabbitmq_kind"),
	}

	return &Config{
		App: App{
			Environment: v.GetString("app.environment"),
			BaseDir:     baseDir,
		},
		Server: Server{
			HttpPort:          v.GetString("server.port"),
			ReadHeaderTimeout: v.GetDuration("server.read_header_timeout"),
		},
		Storage: Storage{
			UploadDir:    uploadDir,
			PublicPrefix: v.GetString("storage.public_prefix"),
		},
		Cors: Cors{
			MarkerFile:  v.GetString("cors.marker_file"),
			LocalOrigin: v.GetString("cors.local_origin"),
		},
		Pose: Pose{
			ModelPath:              modelPath,
			InputSize:              v.GetInt("pose.input_size"),
			LandmarksOutput:        v.GetString("pose.landmarks_output"),
			FlagOutput:             v.GetString("pose.flag_output"),
			MinDetectionConfidence: v.GetFloat64("pose.min_detection_confidence"),
			MinTrackingConfidence:  v.GetFloat64("pose.min_tracking_confidence"),
		},
		Analysis: Analysis{
			MaxSamples: v.GetInt("analysis.max_samples"),
			Codec:      v.GetString("analysis.codec"),
		},
		MinIO:   minioCfg,
		DB:      db,
		Queue:   rabbitmq,
		Objects: minioClient,
	}, nil
}

// CorsMarkerPath is the file whose presence restricts cross-origin access to
// the local frontend.
func (c *Config) CorsMarkerPath() string {
	if filepath.IsAbs(c.Cors.MarkerFile) {
		return c.Cors.MarkerFile
	}
	return filepath.Join(c.App.BaseDir, c.Cors.MarkerFile)
}
