package s3

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
)

// convertAWSError tags AWS SDK errors with the treesync sentinel matching
// their class, so the executor can tell transient failures from terminal ones.
func convertAWSError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown",
			"Throttling",
			"ThrottlingException",
			"RequestLimitExceeded",
			"RequestThrottled",
			"TooManyRequestsException":
			return fmt.Errorf("%w: %w", tserrors.ErrRateLimited, err)
		case "ServiceUnavailable",
			"InternalError",
			"RequestTimeout":
			return fmt.Errorf("%w: %w", tserrors.ErrUnavailable, err)
		case "InvalidAccessKeyId",
			"SignatureDoesNotMatch",
			"ExpiredToken",
			"InvalidToken",
			"AccessDenied":
			return fmt.Errorf("%w: %w", tserrors.ErrInvalidCredentials, err)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", tserrors.ErrRateLimited, err)
		case code == http.StatusBadGateway,
			code == http.StatusServiceUnavailable,
			code == http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %w", tserrors.ErrUnavailable, err)
		case code == http.StatusUnauthorized, code == http.StatusForbidden:
			return fmt.Errorf("%w: %w", tserrors.ErrInvalidCredentials, err)
		}
	}

	return err
}

// isNotFound reports whether err means the object does not exist.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}

	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
