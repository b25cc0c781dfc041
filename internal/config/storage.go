package config

// Storage settings for the product-image bucket.  The bucket is addressed by
// a gocloud.dev blob URL so deployments can switch between a local directory
// (file://) and a hosted object store without code changes.  PublicBaseURL is
// the externally reachable prefix under which uploaded objects are served.

// StorageConfig holds object-store settings for product images.
type StorageConfig struct {
	BucketURL     string // gocloud blob URL, e.g. "file:///var/lib/bazaar/images"
	PublicBaseURL string // public URL prefix for uploaded objects
	MaxUploadMB   int    // per-file upload limit in megabytes
	MaxImages     int    // maximum images per product
}

// LoadStorageConfig reads the storage environment variables with defaults
// suitable for local development.
func LoadStorageConfig() StorageConfig {
	return StorageConfig{
		BucketURL:     getenv("STORAGE_BUCKET_URL", "file:///tmp/bazaar-images"),
		PublicBaseURL: getenv("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/images"),
		MaxUploadMB:   atoi(getenv("STORAGE_MAX_UPLOAD_MB", "5")),
		MaxImages:     atoi(getenv("STORAGE_MAX_IMAGES", "5")),
	}
}
