package objectstore

import "strings"

// ParseURL extracts the bucket and key from a virtual-hosted-style S3 URL.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.epub
func ParseURL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	if parts := strings.Split(host, "."); len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
