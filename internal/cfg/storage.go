package cfg

import (
	"fmt"
	"net/url"
)

// StorageConfig locates the object store behind the storage service.
type StorageConfig struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// VideoStorageConfig locates the storage service the video API streams from.
type VideoStorageConfig struct {
	Host string
	Port string
}

// URL is the storage service base URL.
func (c VideoStorageConfig) URL() *url.URL {
	return &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%s", c.Host, c.Port)}
}

func (l *Loader) loadStorage() StorageConfig {
	return StorageConfig{
		Bucket:    l.requireEnv("STORAGE_BUCKET"),
		Endpoint:  l.getEnvWithDefault("STORAGE_ENDPOINT", ""),
		Region:    l.getEnvWithDefault("STORAGE_REGION", "us-east-1"),
		AccessKey: l.getEnvWithDefault("STORAGE_ACCESS_KEY", ""),
		SecretKey: l.getEnvWithDefault("STORAGE_SECRET_KEY", ""),
	}
}

func (l *Loader) loadVideoStorage() VideoStorageConfig {
	return VideoStorageConfig{
		Host: l.requireEnv("VIDEO_STORAGE_HOST"),
		Port: l.requireEnv("VIDEO_STORAGE_PORT"),
	}
}
