package config

import (
	"encoding/json"
	"os"

	"uplink/internal/flagx"
	"uplink/internal/timex"
)

// JsonS3Account mirrors S3Account for JSON unmarshalling.
type JsonS3Account struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
}

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "30m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	DatabaseDSN      string `json:"database_dsn"`
	WebhookSecret    string `json:"webhook_secret"`
	AdminToken       string `json:"admin_token"`
	SecretKey        string `json:"secret_key"`
	PublicBaseURL    string `json:"public_base_url"`

	EdgeS3    *JsonS3Account `json:"edge_s3"`
	ArchiveS3 *JsonS3Account `json:"archive_s3"`

	TranscoderURL      string   `json:"transcoder_url"`
	TranscodeQualities []string `json:"transcode_qualities"`

	EmailProviderURL string `json:"email_provider_url"`
	EmailFrom        string `json:"email_from"`

	UploadURLValidityDuration timex.Duration `json:"upload_url_validity_duration"`
	PartURLValidityDuration   timex.Duration `json:"part_url_validity_duration"`
	StreamURLValidityDuration timex.Duration `json:"stream_url_validity_duration"`

	MultipartThreshold int64 `json:"multipart_threshold"`
	MaxBatchURLs       int   `json:"max_batch_urls"`

	SweepInterval timex.Duration `json:"sweep_interval"`
	SweepMaxAge   timex.Duration `json:"sweep_max_age"`
}

func copyAccount(dst *S3Account, src *JsonS3Account) {
	if src == nil {
		return
	}
	if src.AccessKey != "" {
		dst.AccessKey = src.AccessKey
	}
	if src.SecretKey != "" {
		dst.SecretKey = src.SecretKey
	}
	if src.Bucket != "" {
		dst.Bucket = src.Bucket
	}
	if src.Region != "" {
		dst.Region = src.Region
	}
	if src.Endpoint != "" {
		dst.Endpoint = src.Endpoint
	}
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. Empty/omitted JSON fields
// leave the current (default) value in place. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.WebhookSecret != "" {
		config.WebhookSecret = c.WebhookSecret
	}
	if c.AdminToken != "" {
		config.AdminToken = c.AdminToken
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.PublicBaseURL != "" {
		config.PublicBaseURL = c.PublicBaseURL
	}

	copyAccount(&config.EdgeS3, c.EdgeS3)
	copyAccount(&config.ArchiveS3, c.ArchiveS3)

	if c.TranscoderURL != "" {
		config.TranscoderURL = c.TranscoderURL
	}
	if len(c.TranscodeQualities) > 0 {
		config.TranscodeQualities = c.TranscodeQualities
	}
	if c.EmailProviderURL != "" {
		config.EmailProviderURL = c.EmailProviderURL
	}
	if c.EmailFrom != "" {
		config.EmailFrom = c.EmailFrom
	}

	if c.UploadURLValidityDuration.Duration != 0 {
		config.UploadURLValidityDuration = c.UploadURLValidityDuration.Duration
	}
	if c.PartURLValidityDuration.Duration != 0 {
		config.PartURLValidityDuration = c.PartURLValidityDuration.Duration
	}
	if c.StreamURLValidityDuration.Duration != 0 {
		config.StreamURLValidityDuration = c.StreamURLValidityDuration.Duration
	}
	if c.MultipartThreshold != 0 {
		config.MultipartThreshold = c.MultipartThreshold
	}
	if c.MaxBatchURLs != 0 {
		config.MaxBatchURLs = c.MaxBatchURLs
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.SweepMaxAge.Duration != 0 {
		config.SweepMaxAge = c.SweepMaxAge.Duration
	}
}
