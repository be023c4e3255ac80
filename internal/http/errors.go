package httpx

import (
	"net/http"

	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

// StatusFor maps an application error code onto an HTTP status.
func StatusFor(err error) int {
	switch apperrors.GetCode(err) {
	case "":
		return http.StatusInternalServerError
	case apperrors.ErrCodeValidation, apperrors.ErrCodeRangeTooLarge:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError writes err using its code. Unclassified errors hide their message.
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: string(apperrors.ErrCodeInternal), Err: errInternal})
		return
	}
	WriteError(w, ErrorParams{Code: StatusFor(err), ErrCode: string(code), Err: err, Field: apperrors.GetField(err)})
}
