package service

import (
	"errors"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dasmlab/tmengine/pkg/memory"
)

// ErrorDomain is the ErrorInfo domain of statuses produced by this service.
const ErrorDomain = "tmengine.dasmlab.io"

// ErrJobNotFound is returned for unknown import job ids.
var ErrJobNotFound = errors.New("job not found")

var kindCodes = map[memory.Kind]codes.Code{
	memory.KindValidation:         codes.InvalidArgument,
	memory.KindStorageUnavailable: codes.Unavailable,
	memory.KindStorageTimeout:     codes.DeadlineExceeded,
	memory.KindStorageProtocol:    codes.Internal,
	memory.KindFallbackOracle:     codes.Unavailable,
}

func reason(kind memory.Kind) string {
	return strings.ToUpper(kind.String())
}

// toStatus converts an engine error into a gRPC status error. The status
// carries an ErrorInfo whose reason names the error kind.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, ErrJobNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}

	kind := memory.KindOf(err)
	code, ok := kindCodes[kind]
	if !ok {
		code = codes.Internal
	}
	st := status.New(code, err.Error())
	info := &errdetails.ErrorInfo{Reason: reason(kind), Domain: ErrorDomain}
	var me *memory.Error
	if errors.As(err, &me) {
		info.Metadata = map[string]string{"op": me.Op}
	}
	if withDetails, derr := st.WithDetails(info); derr == nil {
		st = withDetails
	}
	return st.Err()
}

// FromStatus turns a status error produced by toStatus back into a
// *memory.Error so callers can use errors.Is and memory.KindOf. Other errors
// are returned unchanged.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return err
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.Domain != ErrorDomain {
			continue
		}
		for kind := memory.KindValidation; kind <= memory.KindFallbackOracle; kind++ {
			if info.Reason == reason(kind) {
				return &memory.Error{Kind: kind, Op: info.Metadata["op"], Detail: st.Message()}
			}
		}
	}
	return err
}
