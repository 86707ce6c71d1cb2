package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/calcsite/calculator-sdk-go/executor"
	"github.com/calcsite/calculator-sdk-go/httpclient"
)

// MockTransport provides a testify-based mock implementation of executor.Transport.
//
// Example usage:
//
//	mockTransport := &mocks.MockTransport{}
//	mockTransport.On("Do", mock.Anything, http.MethodGet, mock.MatchedBy(func(r *httpclient.Request) bool {
//		return strings.HasSuffix(r.URL, "/calculators")
//	})).Return(mocks.JSONResponse(200, `{"calculators":[]}`), nil)
type MockTransport struct {
	mock.Mock
}

var _ executor.Transport = (*MockTransport)(nil)

// Do implements executor.Transport
func (m *MockTransport) Do(ctx context.Context, method string, req *httpclient.Request) (*httpclient.Response, error) {
	args := m.Called(ctx, method, req)
	var resp *httpclient.Response
	if r := args.Get(0); r != nil {
		resp = r.(*httpclient.Response)
	}
	return resp, args.Error(1)
}

// JSONResponse builds a response with the given status and body.
func JSONResponse(status int, body string) *httpclient.Response {
	return &httpclient.Response{StatusCode: status, Body: []byte(body)}
}
