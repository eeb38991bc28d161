package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dasmlab/tmengine/pkg/memory"
)

// Engine is the part of *memory.Engine the service calls.
type Engine interface {
	Adder
	Translate(ctx context.Context, req memory.TranslateRequest) (*memory.TranslateResponse, error)
}

// TranslationService implements the TranslationMemory gRPC service on top of
// the memory engine and the import job queue.
type TranslationService struct {
	// Engine serves add and translate requests.
	Engine Engine

	// Jobs tracks import jobs. Import methods fail with Unimplemented when nil.
	Jobs *JobQueue

	// Logger for service operations.
	Logger *logrus.Logger
}

// NewTranslationService creates a new TranslationService instance.
func NewTranslationService(engine Engine, jobs *JobQueue, logger *logrus.Logger) *TranslationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TranslationService{
		Engine: engine,
		Jobs:   jobs,
		Logger: logger,
	}
}

var _ TranslationMemoryServer = (*TranslationService)(nil)

// AddTranslation stores a source text and its translation.
func (s *TranslationService) AddTranslation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req memory.AddRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.Logger.WithFields(logrus.Fields{
		"source_lang": req.SourceLanguage,
		"target_lang": req.TargetLanguage,
		"text_length": len(req.SourceText),
	}).Debug("[gRPC] AddTranslation request received")

	resp, err := s.Engine.AddTranslation(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.reply(resp)
}

// Translate translates a source text from the memory, falling back to
// machine translation per segment.
func (s *TranslationService) Translate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req memory.TranslateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.Logger.WithFields(logrus.Fields{
		"source_lang": req.SourceLanguage,
		"target_lang": req.TargetLanguage,
		"text_length": len(req.SourceText),
	}).Debug("[gRPC] Translate request received")

	resp, err := s.Engine.Translate(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.reply(resp)
}

// ImportTranslations queues an import job and returns its id.
func (s *TranslationService) ImportTranslations(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.Jobs == nil {
		return nil, status.Error(codes.Unimplemented, "imports are not enabled")
	}
	var req ImportRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	jobID, err := s.Jobs.CreateJob(req)
	if err != nil {
		return nil, toStatus(err)
	}
	s.Logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"name":   req.Name,
	}).Info("[gRPC] Import job accepted")
	return s.reply(map[string]any{
		"jobId":      jobID,
		"acceptedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetImportJob returns the state of an import job.
func (s *TranslationService) GetImportJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.Jobs == nil {
		return nil, status.Error(codes.Unimplemented, "imports are not enabled")
	}
	jobID := in.GetFields()["jobId"].GetStringValue()
	if jobID == "" {
		return nil, status.Error(codes.InvalidArgument, "jobId is required")
	}
	job, err := s.Jobs.GetJob(jobID)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.reply(job.Snapshot())
}

func (s *TranslationService) reply(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		s.Logger.WithError(err).Error("[gRPC] Failed to encode response")
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// UnaryInterceptor logs every call and counts it by method and status code.
func UnaryInterceptor(logger *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		method := methodName(info.FullMethod)
		grpcRequestsTotal.WithLabelValues(method, code.String()).Inc()

		entry := logger.WithFields(logrus.Fields{
			"method":      method,
			"code":        code.String(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case err == nil:
			entry.Info("[gRPC] Request completed")
		case code == codes.InvalidArgument || code == codes.NotFound:
			entry.WithError(err).Warn("[gRPC] Request rejected")
		default:
			entry.WithError(err).Error("[gRPC] Request failed")
		}
		return resp, err
	}
}

// methodName strips the service prefix from a full method name.
func methodName(fullMethod string) string {
	if i := strings.LastIndexByte(fullMethod, '/'); i >= 0 {
		return fullMethod[i+1:]
	}
	return fullMethod
}
