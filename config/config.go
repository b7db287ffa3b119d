package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix ist das Präfix für Umgebungsvariablen, z.B. FACEAUTH_SERVER_PORT
const EnvPrefix = "FACEAUTH"

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Recognizer RecognizerConfig `mapstructure:"recognizer"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Session    SessionConfig    `mapstructure:"session"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	DataDir        string   `mapstructure:"data_dir"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb"`
}

// Addr liefert host:port für den HTTP-Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	File string `mapstructure:"file"` // SQLite-Datei
}

// StorageConfig beschreibt den Speicherort der Referenzgesichter
type StorageConfig struct {
	Folder  string `mapstructure:"folder"`
	Layout  string `mapstructure:"layout"`  // "nested" (<folder>/<identity>/...) oder "flat"
	Workers int    `mapstructure:"workers"` // 0 = max(2, 3/4 der CPUs)
}

// CameraConfig enthält die Einstellungen für die Bildquelle
type CameraConfig struct {
	Device      string        `mapstructure:"device"` // Geräte-ID, URL oder Datei/Verzeichnis
	Width       int           `mapstructure:"width"`
	Height      int           `mapstructure:"height"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"` // 0 = kein Timeout
}

// DetectorConfig enthält die Einstellungen der Gesichtsdetektion
type DetectorConfig struct {
	ModelPath           string  `mapstructure:"model_path"`   // DNN-Gewichte (Caffe res10 SSD)
	ConfigPath          string  `mapstructure:"config_path"`  // DNN-Konfiguration (prototxt)
	CascadePath         string  `mapstructure:"cascade_path"` // Haar-Cascade als Fallback
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	Backend             string  `mapstructure:"backend"` // "default", "cuda", "opencl", "openvino"
	Target              string  `mapstructure:"target"`  // "cpu", "cuda", "cuda_fp16", "opencl"
	InputSize           int     `mapstructure:"input_size"`
}

// RecognizerConfig enthält die Einstellungen der Merkmalsextraktion
type RecognizerConfig struct {
	// Extractor: "lbph", "template", "dlib" oder "insightface"
	Extractor         string  `mapstructure:"extractor"`
	FaceWidth         int     `mapstructure:"face_width"`
	FaceHeight        int     `mapstructure:"face_height"`
	DistanceThreshold float64 `mapstructure:"distance_threshold"`
	MinSimilarity     float64 `mapstructure:"min_similarity"`
	ModelsDir         string  `mapstructure:"models_dir"`     // dlib-Modelle
	AlignMinAngle     float64 `mapstructure:"align_min_angle"` // Grad
	InsightFaceURL    string  `mapstructure:"insightface_url"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// SessionConfig enthält die Einstellungen der Login-Session
type SessionConfig struct {
	Name   string        `mapstructure:"name"`
	Secret string        `mapstructure:"secret"`
	MaxAge time.Duration `mapstructure:"max_age"`
	Secure bool          `mapstructure:"secure"`
}

// CleanupConfig enthält Bereinigungseinstellungen
type CleanupConfig struct {
	RetentionDays int           `mapstructure:"retention_days"`
	Interval      time.Duration `mapstructure:"interval"`
}

// I18nConfig enthält die Spracheinstellungen
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// Validate prüft Werte, die keine sinnvollen Standardwerte haben können
func (c *Config) Validate() error {
	switch c.Storage.Layout {
	case "nested", "flat":
	default:
		return fmt.Errorf("invalid storage.layout %q (nested|flat)", c.Storage.Layout)
	}

	switch c.Recognizer.Extractor {
	case "lbph", "template", "dlib", "insightface":
	default:
		return fmt.Errorf("invalid recognizer.extractor %q", c.Recognizer.Extractor)
	}

	if c.Recognizer.FaceWidth <= 0 || c.Recognizer.FaceHeight <= 0 {
		return fmt.Errorf("recognizer face size must be positive, got %dx%d",
			c.Recognizer.FaceWidth, c.Recognizer.FaceHeight)
	}
	if c.Detector.ConfidenceThreshold <= 0 || c.Detector.ConfidenceThreshold > 1 {
		return fmt.Errorf("detector.confidence_threshold must be in (0, 1], got %v", c.Detector.ConfidenceThreshold)
	}
	if c.Camera.ReadTimeout < 0 {
		return fmt.Errorf("camera.read_timeout must not be negative")
	}
	return nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server-Standardwerte
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 10)

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// DB-Standardwerte
	v.SetDefault("db.file", "./data/faceauth.db")

	// Referenzgesichter
	v.SetDefault("storage.folder", "face_db")
	v.SetDefault("storage.layout", "nested")
	v.SetDefault("storage.workers", 0)

	// Kamera
	v.SetDefault("camera.device", "0")
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.read_timeout", 2*time.Second)

	// Detektor
	v.SetDefault("detector.model_path", "./models/res10_300x300_ssd_iter_140000.caffemodel")
	v.SetDefault("detector.config_path", "./models/deploy.prototxt")
	v.SetDefault("detector.cascade_path", "./models/haarcascade_frontalface_default.xml")
	v.SetDefault("detector.confidence_threshold", 0.5)
	v.SetDefault("detector.backend", "default")
	v.SetDefault("detector.target", "cpu")
	v.SetDefault("detector.input_size", 300)

	// Erkennung
	v.SetDefault("recognizer.extractor", "lbph")
	v.SetDefault("recognizer.face_width", 100)
	v.SetDefault("recognizer.face_height", 100)
	v.SetDefault("recognizer.distance_threshold", 3500.0)
	v.SetDefault("recognizer.min_similarity", 0.6)
	v.SetDefault("recognizer.models_dir", "./models")
	v.SetDefault("recognizer.align_min_angle", 2.0)
	v.SetDefault("recognizer.insightface_url", "http://localhost:18081")
	v.SetDefault("recognizer.max_attempts", 10)

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "faceauth-go")
	v.SetDefault("mqtt.topic", "faceauth")

	// Session
	v.SetDefault("session.name", "faceauth_session")
	v.SetDefault("session.secret", "change-me")
	v.SetDefault("session.max_age", 12*time.Hour)
	v.SetDefault("session.secure", false)

	// Cleanup-Standardwerte
	v.SetDefault("cleanup.retention_days", 30)
	v.SetDefault("cleanup.interval", time.Hour)

	// Sprache
	v.SetDefault("i18n.default_language", "de")
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Storage.Folder, 0755); err != nil {
		return fmt.Errorf("failed to create storage folder: %w", err)
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if cfg.DB.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
