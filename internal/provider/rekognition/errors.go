package rekognition

import "errors"

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrInvalidImage indicates the encoded frame cannot be sent to Rekognition
	ErrInvalidImage = errors.New("invalid image for rekognition")

	// ErrThrottled indicates AWS rejected the call for rate or throughput limits
	ErrThrottled = errors.New("rekognition request throttled")
)
