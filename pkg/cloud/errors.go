package cloud

import (
	"errors"

	"github.com/aws/smithy-go"
)

var notFoundCodes = map[string]bool{
	"NotFound":                    true,
	"NoSuchBucket":                true,
	"NoSuchEntity":                true,
	"RepositoryNotFoundException": true,
	"ResourceNotFoundException":   true,
	"NoSuchKey":                   true,
}

// IsNotFound reports whether err is an AWS API error meaning the requested
// object does not exist.
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return notFoundCodes[apiErr.ErrorCode()]
	}
	return false
}

// IsAlreadyExists reports whether err is an AWS API error meaning the object
// being created, associated or attached is already there.
func IsAlreadyExists(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "BucketAlreadyOwnedByYou", "EntityAlreadyExists", "RepositoryAlreadyExistsException", "DuplicateResourceException":
			return true
		}
	}
	return false
}
