// Package response writes the {code, msg, data} envelope shared by every
// endpoint.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// CodeError is an error that carries a business code.
type CodeError struct {
	code uint32
	msg  string
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{code: uint32(code), msg: msg}
}

func (e *CodeError) Error() string {
	return e.msg
}

func (e *CodeError) Code() uint32 {
	return e.code
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error replies with a business code inside a 200 envelope. Transport level
// statuses are reserved for failures gin produces itself.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, NewCodeError(code, message))
}
