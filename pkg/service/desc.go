package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tmengine.v1.TranslationMemory"

// Full method names.
const (
	MethodAddTranslation     = "/" + ServiceName + "/AddTranslation"
	MethodTranslate          = "/" + ServiceName + "/Translate"
	MethodImportTranslations = "/" + ServiceName + "/ImportTranslations"
	MethodGetImportJob       = "/" + ServiceName + "/GetImportJob"
)

// TranslationMemoryServer is the server API. Messages are google.protobuf.Struct
// values whose fields follow the JSON shape of the memory package types.
type TranslationMemoryServer interface {
	AddTranslation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Translate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ImportTranslations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetImportJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(TranslationMemoryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts call to the handler signature grpc.MethodDesc expects.
func unaryHandler(fullMethod string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TranslationMemoryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TranslationMemoryServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the TranslationMemory service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TranslationMemoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AddTranslation",
			Handler:    unaryHandler(MethodAddTranslation, TranslationMemoryServer.AddTranslation),
		},
		{
			MethodName: "Translate",
			Handler:    unaryHandler(MethodTranslate, TranslationMemoryServer.Translate),
		},
		{
			MethodName: "ImportTranslations",
			Handler:    unaryHandler(MethodImportTranslations, TranslationMemoryServer.ImportTranslations),
		},
		{
			MethodName: "GetImportJob",
			Handler:    unaryHandler(MethodGetImportJob, TranslationMemoryServer.GetImportJob),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tmengine/v1/translation_memory.proto",
}

// RegisterTranslationMemoryServer registers srv on s.
func RegisterTranslationMemoryServer(s grpc.ServiceRegistrar, srv TranslationMemoryServer) {
	s.RegisterService(&ServiceDesc, srv)
}
