// Package httpapi is a hand-rolled HTTP/1.1 request parser, response
// writer, and path-pattern router over net.Conn — not net/http. The
// request/response shape and the status-code table are grounded on the
// original EstadoHttp/MetodoHttp/Endpoint split, generalized from a
// single-process enum into a small reusable router (C8).
package httpapi

import "fmt"

// Status pairs an HTTP status code with its reason phrase, mirroring
// EstadoHttp's (code, message) pairs.
type Status struct {
	Code    int
	Message string
}

func (s Status) String() string {
	return fmt.Sprintf("%d %s", s.Code, s.Message)
}

var (
	StatusOK                   = Status{200, "OK"}
	StatusCreated              = Status{201, "Created"}
	StatusNoContent            = Status{204, "No Content"}
	StatusMergeNotAllowed      = Status{205, "Merge Not Allowed"}
	StatusBadRequest           = Status{400, "Bad Request"}
	StatusForbidden            = Status{403, "Forbidden"}
	StatusNotFound             = Status{404, "Not Found"}
	StatusConflict             = Status{409, "Conflict"}
	StatusValidationFailed     = Status{422, "Validation Failed"}
	StatusInternalServerError  = Status{500, "Internal Server Error"}
	StatusNotImplementedStatus = Status{501, "Not Implemented"}
)
