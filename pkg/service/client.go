package service

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dasmlab/tmengine/pkg/memory"
)

// Client calls the TranslationMemory service. Errors carrying engine error
// details come back as *memory.Error.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) call(ctx context.Context, method string, in any, out any, opts ...grpc.CallOption) error {
	req, err := toStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, resp, opts...); err != nil {
		return FromStatus(err)
	}
	if err := fromStruct(resp, out); err != nil {
		return fmt.Errorf("%s: %w", methodName(method), err)
	}
	return nil
}

// AddTranslation stores a source text and its translation.
func (c *Client) AddTranslation(ctx context.Context, req memory.AddRequest, opts ...grpc.CallOption) (*memory.AddResponse, error) {
	var resp memory.AddResponse
	if err := c.call(ctx, MethodAddTranslation, req, &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Translate translates a source text.
func (c *Client) Translate(ctx context.Context, req memory.TranslateRequest, opts ...grpc.CallOption) (*memory.TranslateResponse, error) {
	var resp memory.TranslateResponse
	if err := c.call(ctx, MethodTranslate, req, &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ImportTranslations queues an import and returns the job id.
func (c *Client) ImportTranslations(ctx context.Context, req ImportRequest, opts ...grpc.CallOption) (string, error) {
	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := c.call(ctx, MethodImportTranslations, req, &resp, opts...); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// GetImportJob returns the state of an import job.
func (c *Client) GetImportJob(ctx context.Context, jobID string, opts ...grpc.CallOption) (*JobSnapshot, error) {
	var snap JobSnapshot
	in := map[string]string{"jobId": jobID}
	if err := c.call(ctx, MethodGetImportJob, in, &snap, opts...); err != nil {
		return nil, err
	}
	return &snap, nil
}
