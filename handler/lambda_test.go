package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, uc *stubUseCase) *LambdaAdapter {
	t.Helper()
	a, err := NewLambdaAdapter(newTestServer(t, uc))
	require.NoError(t, err)
	return a
}

func TestNewLambdaAdapter_ValidatesDependency(t *testing.T) {
	_, err := NewLambdaAdapter(nil)
	require.Error(t, err)
}

func header(resp events.APIGatewayProxyResponse, key string) string {
	return http.Header(resp.MultiValueHeaders).Get(key)
}

func TestLambda_ChatHappyPath(t *testing.T) {
	uc := &stubUseCase{}
	a := newTestAdapter(t, uc)

	resp, err := a.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/chat",
		Headers:    map[string]string{"Content-Type": "application/json", "X-Correlation-Id": "lambda-1"},
		Body:       `{"prompt":"What is a latch?"}`,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "What is a latch?", uc.chatIn.Prompt)
	require.Equal(t, "lambda-1", header(resp, correlationHeader))
	require.False(t, resp.IsBase64Encoded)

	out := parseBody[chatResponse](t, []byte(resp.Body))
	require.Equal(t, "hi", out.Reply)
}

func TestLambda_MultiValueHeadersAndQuery(t *testing.T) {
	a := newTestAdapter(t, &stubUseCase{})
	resp, err := a.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:                      http.MethodGet,
		Path:                            "/health",
		MultiValueHeaders:               map[string][]string{"Origin": {"http://localhost:3000"}},
		MultiValueQueryStringParameters: map[string][]string{"verbose": {"1", "2"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "http://localhost:3000", header(resp, "Access-Control-Allow-Origin"))
	require.Contains(t, header(resp, "Content-Type"), "application/json")
}

func TestLambda_Base64MultipartUpload(t *testing.T) {
	a := newTestAdapter(t, withRealService(t))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "alu.sv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("module alu(input [3:0] a, b, output [3:0] y);\nendmodule\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := a.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/upload",
		Headers:         map[string]string{"Content-Type": mw.FormDataContentType()},
		Body:            base64.StdEncoding.EncodeToString(buf.Bytes()),
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := parseBody[uploadResponse](t, []byte(resp.Body))
	require.Equal(t, []string{"alu"}, out.Modules)
}

func TestLambda_BadBase64(t *testing.T) {
	uc := &stubUseCase{}
	a := newTestAdapter(t, uc)
	resp, err := a.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/chat",
		Body:            "%%%",
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Empty(t, uc.chatIn.Prompt)
	out := parseBody[errorResponse](t, []byte(resp.Body))
	require.Contains(t, out.Detail, "base64")
}

func TestLambda_ErrorsKeepDetailShape(t *testing.T) {
	a := newTestAdapter(t, withRealService(t))
	resp, err := a.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/testbench",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       `{"dut_code":"wire x;"}`,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := parseBody[errorResponse](t, []byte(resp.Body))
	require.NotEmpty(t, out.Detail)
	require.NotEmpty(t, header(resp, correlationHeader))
}
