// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud holds configuration and the external clients the service
// talks to: Google Cloud (Storage, Pub/Sub, Vertex AI, BigQuery, IAM), the
// session database and the Redis keyed store.
package cloud

import "time"

// Storage locates local working directories and the optional GCS archive.
type Storage struct {
	UploadDir          string `toml:"upload_dir"`
	ClipsDir           string `toml:"clips_dir"`
	CacheDir           string `toml:"cache_dir"`
	ArchiveBucket      string `toml:"archive_bucket"`
	MaxFileSizeMB      int64  `toml:"max_file_size_mb"`
	ClipRetentionHours int    `toml:"clip_retention_hours"`
	JanitorMinutes     int    `toml:"janitor_interval_minutes"`
	SignedURLMinutes   int    `toml:"signed_url_minutes"`
}

// MaxFileSize is the upload limit in bytes.
func (s Storage) MaxFileSize() int64 {
	return s.MaxFileSizeMB * 1024 * 1024
}

// Ingestion tunes the external tools and the frame embedding pool.
type Ingestion struct {
	FrameInterval          float64  `toml:"frame_interval"`
	AllowedExtensions      []string `toml:"allowed_extensions"`
	FFMpegPath             string   `toml:"ffmpeg_path"`
	YtDlpPath              string   `toml:"yt_dlp_path"`
	AudioTimeoutSeconds    int      `toml:"audio_timeout_seconds"`
	DownloadTimeoutSeconds int      `toml:"download_timeout_seconds"`
	ClipTimeoutSeconds     int      `toml:"clip_timeout_seconds"`
	FrameBatchSize         int      `toml:"frame_batch_size"`
	ProgressEvery          int      `toml:"progress_every"`
	MinSegmentChars        int      `toml:"min_segment_chars"`
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (i Ingestion) AudioTimeout() time.Duration    { return seconds(i.AudioTimeoutSeconds) }
func (i Ingestion) DownloadTimeout() time.Duration { return seconds(i.DownloadTimeoutSeconds) }
func (i Ingestion) ClipTimeout() time.Duration     { return seconds(i.ClipTimeoutSeconds) }

// Search holds the ranking policy weights and thresholds.
type Search struct {
	KeywordBonus           float64 `toml:"keyword_bonus"`
	TextThreshold          float64 `toml:"text_threshold"`
	TextWeight             float64 `toml:"text_weight"`
	VisualWeight           float64 `toml:"visual_weight"`
	HybridVisualThreshold  float64 `toml:"hybrid_visual_threshold"`
	VisualOversample       int     `toml:"visual_oversample"`
	ProviderTimeoutSeconds int     `toml:"provider_timeout_seconds"`
	DefaultTopK            int     `toml:"default_top_k"`
}

type RateLimit struct {
	UploadsPerDay int `toml:"uploads_per_day"`
}

type Database struct {
	DSN   string `toml:"dsn"`
	Debug bool   `toml:"debug"`
}

// KeyedStore selects the backend for rate limits, history and bookmarks.
type KeyedStore struct {
	Driver        string `toml:"driver"` // "memory" or "redis"
	RedisAddress  string `toml:"redis_address"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
}

// Providers picks an implementation per role.
type Providers struct {
	TextEmbedder   string `toml:"text_embedder"`   // "vertex", "openai" or "ollama"
	TextModel      string `toml:"text_model"`      // key into embedding_models for vertex
	VisualEmbedder string `toml:"visual_embedder"` // "clip" or empty
	Transcriber    string `toml:"transcriber"`     // "openai", "whisper_cli" or empty
}

type VertexAiEmbeddingModel struct {
	Model                string `toml:"model"`
	MaxRequestsPerSecond int    `toml:"max_requests_per_second"`
}

type OpenAI struct {
	APIKey             string `toml:"api_key"`
	BaseURL            string `toml:"base_url"`
	EmbeddingModel     string `toml:"embedding_model"`
	TranscriptionModel string `toml:"transcription_model"`
	Language           string `toml:"language"`
}

type Ollama struct {
	ServerURL string `toml:"server_url"`
	Model     string `toml:"model"`
}

type Clip struct {
	ModelName         string `toml:"model_name"`
	SharedLibraryPath string `toml:"shared_library_path"`
	TokenizerPath     string `toml:"tokenizer_path"`
	TextModelPath     string `toml:"text_model_path"`
	VisionModelPath   string `toml:"vision_model_path"`
	IntraOpThreads    int    `toml:"intra_op_threads"`
}

type Whisper struct {
	BinaryPath string `toml:"binary_path"`
	ModelPath  string `toml:"model_path"`
	Language   string `toml:"language"`
	Threads    int    `toml:"threads"`
}

type BigQueryDataSource struct {
	DatasetName  string `toml:"dataset"`
	CatalogTable string `toml:"catalog_table"`
}

type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		Version                   string `toml:"version"`
		ListenAddress             string `toml:"listen_address"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		CredentialsFile           string `toml:"credentials_file"`
		ThreadPoolSize            int    `toml:"thread_pool_size"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
		LogFile                   string `toml:"log_file"`
		LogLevel                  string `toml:"log_level"`
	} `toml:"application"`
	Storage            Storage                           `toml:"storage"`
	Ingestion          Ingestion                         `toml:"ingestion"`
	Search             Search                            `toml:"search"`
	RateLimit          RateLimit                         `toml:"rate_limit"`
	Database           Database                          `toml:"database"`
	KeyedStore         KeyedStore                        `toml:"keyed_store"`
	Providers          Providers                         `toml:"providers"`
	EmbeddingModels    map[string]VertexAiEmbeddingModel `toml:"embedding_models"`
	OpenAI             OpenAI                            `toml:"openai"`
	Ollama             Ollama                            `toml:"ollama"`
	Clip               Clip                              `toml:"clip"`
	Whisper            Whisper                           `toml:"whisper"`
	BigQueryDataSource BigQueryDataSource                `toml:"big_query_data_source"`
	// TopicSubscriptions maps a logical name (e.g. "UploadTopic") to a subscription.
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`
}

// NewConfig returns a Config holding the defaults the TOML files override.
func NewConfig() *Config {
	c := &Config{
		Storage: Storage{
			UploadDir:          "uploads",
			ClipsDir:           "clips",
			CacheDir:           "cache",
			MaxFileSizeMB:      500,
			ClipRetentionHours: 24,
			JanitorMinutes:     60,
			SignedURLMinutes:   15,
		},
		Ingestion: Ingestion{
			FrameInterval:          1.0,
			AllowedExtensions:      []string{".mp4", ".avi", ".mov", ".mkv", ".webm"},
			FFMpegPath:             "ffmpeg",
			YtDlpPath:              "yt-dlp",
			AudioTimeoutSeconds:    300,
			DownloadTimeoutSeconds: 600,
			ClipTimeoutSeconds:     120,
			FrameBatchSize:         32,
			ProgressEvery:          50,
			MinSegmentChars:        3,
		},
		Search: Search{
			KeywordBonus:           0.3,
			TextThreshold:          0.3,
			TextWeight:             0.5,
			VisualWeight:           0.5,
			HybridVisualThreshold:  0.2,
			VisualOversample:       2,
			ProviderTimeoutSeconds: 30,
			DefaultTopK:            10,
		},
		RateLimit:          RateLimit{UploadsPerDay: 50},
		Database:           Database{DSN: "clipfinder.db"},
		KeyedStore:         KeyedStore{Driver: "memory", Prefix: "clipfinder:"},
		EmbeddingModels:    make(map[string]VertexAiEmbeddingModel),
		TopicSubscriptions: make(map[string]TopicSubscription),
	}
	c.Application.Name = "clip-finder"
	c.Application.Version = "1.0.0"
	c.Application.ListenAddress = ":8080"
	c.Application.ThreadPoolSize = 4
	c.Application.LogFile = "app.log"
	c.Application.LogLevel = "info"
	return c
}
