// Package mocks provides test doubles for the ctt client.
package mocks

import (
	"context"

	ctt "github.com/sells-group/postal-cli/pkg/ctt"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Lookup provides a mock function with given fields: ctx, apiKey, postalCode
func (_m *MockClient) Lookup(ctx context.Context, apiKey string, postalCode string) ([]ctt.Address, error) {
	ret := _m.Called(ctx, apiKey, postalCode)

	if len(ret) == 0 {
		panic("no return value specified for Lookup")
	}

	var r0 []ctt.Address
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) ([]ctt.Address, error)); ok {
		return rf(ctx, apiKey, postalCode)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) []ctt.Address); ok {
		r0 = rf(ctx, apiKey, postalCode)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]ctt.Address)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, apiKey, postalCode)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
