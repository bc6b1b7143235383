package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	MimeCSV = "text/csv"
)

// MaxAvatarBytes 头像最大 500KB（解码后）
const MaxAvatarBytes = 500 * 1024

var AllowedImageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}
