package codec

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region mock
type mockInferenceService struct {
	completeResp *structpb.Struct
	completeErr  error
	completeReq  *structpb.Struct

	embedResp *structpb.Struct
	embedErr  error
}

func (m *mockInferenceService) Complete(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.completeReq = in
	return m.completeResp, m.completeErr
}

func (m *mockInferenceService) Embed(_ context.Context, _ *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	return m.embedResp, m.embedErr
}

// mockConn records the invoked method and copies a canned reply.
type mockConn struct {
	method string
	reply  *structpb.Struct
	err    error
}

func (m *mockConn) Invoke(_ context.Context, method string, _ any, reply any, _ ...grpc.CallOption) error {
	m.method = method
	if m.err != nil {
		return m.err
	}
	proto.Merge(reply.(proto.Message), m.reply)
	return nil
}

func (m *mockConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("streams not supported")
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	return s
}

// #endregion mock

// #region constructor-tests
func TestNewCodecClientInvalidAddr(t *testing.T) {
	client, err := NewCodecClient("localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	defer client.Close()
}

func TestNewCodecClientWithService(t *testing.T) {
	c := NewCodecClientWithService(&mockInferenceService{})
	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.client == nil {
		t.Fatal("expected non-nil internal client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close without conn: %v", err)
	}
}

// #endregion constructor-tests

// #region complete-tests
func TestComplete_Success(t *testing.T) {
	mock := &mockInferenceService{
		completeResp: mustStruct(t, map[string]any{"text": "Visual: a shoe"}),
	}
	c := NewCodecClientWithService(mock)

	text, err := c.Complete(context.Background(), "prompt", 0.7, 400)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Visual: a shoe" {
		t.Errorf("expected text, got %q", text)
	}
	fields := mock.completeReq.GetFields()
	if fields["prompt"].GetStringValue() != "prompt" {
		t.Errorf("prompt not sent: %v", fields)
	}
	if fields["max_tokens"].GetNumberValue() != 400 {
		t.Errorf("max_tokens not sent: %v", fields)
	}
}

func TestComplete_Error(t *testing.T) {
	mock := &mockInferenceService{completeErr: errors.New("rpc failed")}
	c := NewCodecClientWithService(mock)

	_, err := c.Complete(context.Background(), "prompt", 1, 100)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, mock.completeErr) {
		t.Errorf("expected wrapped rpc error, got: %v", err)
	}
}

func TestComplete_Empty(t *testing.T) {
	mock := &mockInferenceService{completeResp: mustStruct(t, map[string]any{})}
	c := NewCodecClientWithService(mock)

	if _, err := c.Complete(context.Background(), "prompt", 1, 100); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

// #endregion complete-tests

// #region embed-tests
func TestEmbed_Success(t *testing.T) {
	mock := &mockInferenceService{
		embedResp: mustStruct(t, map[string]any{"embedding": []any{0.5, 0.6, 0.7}}),
	}
	c := NewCodecClientWithService(mock)

	emb, err := c.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emb) != 3 {
		t.Errorf("expected 3 floats, got %d", len(emb))
	}
	if emb[0] != 0.5 {
		t.Errorf("expected first element 0.5, got %f", emb[0])
	}
}

func TestEmbed_Error(t *testing.T) {
	mock := &mockInferenceService{embedErr: errors.New("embed failed")}
	c := NewCodecClientWithService(mock)

	_, err := c.Embed(context.Background(), "text")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, mock.embedErr) {
		t.Errorf("expected wrapped embed error, got: %v", err)
	}
}

func TestEmbed_Empty(t *testing.T) {
	mock := &mockInferenceService{embedResp: mustStruct(t, map[string]any{"embedding": []any{}})}
	c := NewCodecClientWithService(mock)

	if _, err := c.Embed(context.Background(), "text"); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

// #endregion embed-tests

// #region transport-tests
func TestInferenceServiceClientMethods(t *testing.T) {
	conn := &mockConn{reply: mustStruct(t, map[string]any{"text": "ok"})}
	svc := NewInferenceServiceClient(conn)

	out, err := svc.Complete(context.Background(), mustStruct(t, map[string]any{"prompt": "p"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.method != completeMethod {
		t.Errorf("expected %s, got %s", completeMethod, conn.method)
	}
	if out.GetFields()["text"].GetStringValue() != "ok" {
		t.Errorf("reply not decoded: %v", out)
	}

	if _, err := svc.Embed(context.Background(), mustStruct(t, map[string]any{"text": "t"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.method != embedMethod {
		t.Errorf("expected %s, got %s", embedMethod, conn.method)
	}
}

func TestInferenceServiceClientError(t *testing.T) {
	conn := &mockConn{err: errors.New("unavailable")}
	svc := NewInferenceServiceClient(conn)

	if _, err := svc.Complete(context.Background(), &structpb.Struct{}); !errors.Is(err, conn.err) {
		t.Fatalf("expected conn error, got %v", err)
	}
}

// #endregion transport-tests
