package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfAndWrap(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := fmt.Errorf("read identity: %w", Wrap(base, CodeTimeout, "rpc timed out"))

	assert.Equal(t, CodeTimeout, CodeOf(err))
	assert.True(t, HasCode(err, CodeTimeout))
	assert.True(t, Is(err, CodeTimeout))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "rpc timed out", MessageOf(err))

	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.False(t, HasCode(nil, CodeInternal))
	assert.Nil(t, Wrap(nil, CodeTimeout, "x"))
	assert.Equal(t, "internal error", MessageOf(errors.New("plain")))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Transaction was rejected by user.", UserMessage(New(CodeUserRejected, "code 4001")))
	assert.Equal(t, "Please enter a recipient address.", UserMessage(New(CodeValidation, "Please enter a recipient address.")))
	assert.Equal(t, "The transaction failed. reverted in block 7", UserMessage(New(CodeTransactionFailed, "reverted in block 7")))
	assert.Equal(t, "Something went wrong. Please try again.", UserMessage(errors.New("boom")))
	assert.Empty(t, UserMessage(nil))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:          http.StatusBadRequest,
		CodeValidation:          http.StatusBadRequest,
		CodeInvalidAddress:      http.StatusBadRequest,
		CodeUnauthorized:        http.StatusUnauthorized,
		CodeNotFound:            http.StatusNotFound,
		CodeOperationInProgress: http.StatusConflict,
		CodeUserRejected:        http.StatusUnprocessableEntity,
		CodeVerificationFailed:  http.StatusBadGateway,
		CodeNotConnected:        http.StatusServiceUnavailable,
		CodeTimeout:             http.StatusGatewayTimeout,
		CodeInternal:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), code)
	}
}
