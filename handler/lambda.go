package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	echoadapter "github.com/awslabs/aws-lambda-go-api-proxy/echo"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// LambdaAdapter serves API Gateway proxy events through the echo router, so
// the same routes and middleware run under `serve` and on Lambda.
type LambdaAdapter struct {
	proxy *echoadapter.EchoLambda
}

func NewLambdaAdapter(e *echo.Echo) (*LambdaAdapter, error) {
	if e == nil {
		return nil, errors.New("handler: echo instance must not be nil")
	}
	return &LambdaAdapter{proxy: echoadapter.New(e)}, nil
}

// Handle is the lambda.Start entry point. An event the proxy cannot convert
// (for example a corrupt base64 body) is answered with a 502 in the usual
// {"detail"} shape instead of failing the invocation.
func (a *LambdaAdapter) Handle(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp, err := a.proxy.ProxyWithContext(ctx, ev)
	if err == nil {
		return resp, nil
	}

	log.Error().Err(err).
		Str("method", ev.HTTPMethod).
		Str("path", ev.Path).
		Str("aws_request_id", ev.RequestContext.RequestID).
		Msg("lambda proxy failed")
	body, _ := json.Marshal(errorResponse{Detail: err.Error()})
	return events.APIGatewayProxyResponse{
		StatusCode:        http.StatusBadGateway,
		Headers:           map[string]string{echo.HeaderContentType: echo.MIMEApplicationJSON},
		MultiValueHeaders: map[string][]string{echo.HeaderContentType: {echo.MIMEApplicationJSON}},
		Body:              string(body),
	}, nil
}
