// Code generated by MockGen would normally populate this file; it is
// hand-written here in the same shape mockgen produces, matching the
// consensus/bor/heimdall/span package's MockCaller/MockABI convention.

package controller

import (
	"context"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/mock/gomock"
)

// MockChainReader is a mock of the chainReader interface.
type MockChainReader struct {
	ctrl     *gomock.Controller
	recorder *MockChainReaderMockRecorder
}

// MockChainReaderMockRecorder is the mock recorder for MockChainReader.
type MockChainReaderMockRecorder struct {
	mock *MockChainReader
}

// NewMockChainReader creates a new mock instance.
func NewMockChainReader(ctrl *gomock.Controller) *MockChainReader {
	mock := &MockChainReader{ctrl: ctrl}
	mock.recorder = &MockChainReaderMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockChainReader) EXPECT() *MockChainReaderMockRecorder {
	return m.recorder
}

// FetchLatestBlockNumber mocks base method.
func (m *MockChainReader) FetchLatestBlockNumber(ctx context.Context) (uint64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "FetchLatestBlockNumber", ctx)
	ret0, _ := ret[0].(uint64)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// FetchLatestBlockNumber indicates an expected call.
func (mr *MockChainReaderMockRecorder) FetchLatestBlockNumber(ctx interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "FetchLatestBlockNumber", reflect.TypeOf((*MockChainReader)(nil).FetchLatestBlockNumber), ctx)
}

// FetchBlockByNumber mocks base method.
func (m *MockChainReader) FetchBlockByNumber(ctx context.Context, number uint64) (common.Hash, uint64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "FetchBlockByNumber", ctx, number)
	ret0, _ := ret[0].(common.Hash)
	ret1, _ := ret[1].(uint64)
	ret2, _ := ret[2].(error)
	return ret0, ret1, ret2
}

// FetchBlockByNumber indicates an expected call.
func (mr *MockChainReaderMockRecorder) FetchBlockByNumber(ctx, number interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "FetchBlockByNumber", reflect.TypeOf((*MockChainReader)(nil).FetchBlockByNumber), ctx, number)
}
