package codec

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service
const (
	completeMethod = "/conceptarbiter.v1.InferenceService/Complete"
	embedMethod    = "/conceptarbiter.v1.InferenceService/Embed"
)

// ErrEmptyResponse is returned when the service replies without the expected field.
var ErrEmptyResponse = errors.New("codec: empty response")

// InferenceService is the RPC surface of the inference server. Messages are
// google.protobuf.Struct so no generated stubs are needed.
type InferenceService interface {
	Complete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Embed(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type inferenceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewInferenceServiceClient binds InferenceService to a connection.
func NewInferenceServiceClient(cc grpc.ClientConnInterface) InferenceService {
	return &inferenceServiceClient{cc: cc}
}

func (c *inferenceServiceClient) Complete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, completeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inferenceServiceClient) Embed(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, embedMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion service

// #region client-struct
// CodecClient wraps the gRPC connection to the inference service. It serves
// as both the generation model and the embedder.
type CodecClient struct {
	conn   *grpc.ClientConn
	client InferenceService
}

// #endregion client-struct

// #region constructor
// NewCodecClient connects to the inference gRPC server.
func NewCodecClient(addr string) (*CodecClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &CodecClient{
		conn:   conn,
		client: NewInferenceServiceClient(conn),
	}, nil
}

// NewCodecClientWithService creates a CodecClient with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewCodecClientWithService(svc InferenceService) *CodecClient {
	return &CodecClient{client: svc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *CodecClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region complete
// Complete sends a prompt to the inference service and returns the text.
func (c *CodecClient) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"prompt":      prompt,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("complete request: %w", err)
	}
	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("complete rpc: %w", err)
	}
	text := resp.GetFields()["text"].GetStringValue()
	if text == "" {
		return "", fmt.Errorf("complete rpc: %w", ErrEmptyResponse)
	}
	return text, nil
}

// #endregion complete

// #region embed
// Embed sends text to the inference service for embedding.
func (c *CodecClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req, err := structpb.NewStruct(map[string]any{"text": text})
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	resp, err := c.client.Embed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embed rpc: %w", err)
	}
	values := resp.GetFields()["embedding"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, fmt.Errorf("embed rpc: %w", ErrEmptyResponse)
	}
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.GetNumberValue())
	}
	return vec, nil
}

// #endregion embed
