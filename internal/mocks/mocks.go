// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/lancet/internal/browser"
)

// -- Provider Mock --

// MockProvider mocks browser.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	args := m.Called(ctx, opts)
	if b := args.Get(0); b != nil {
		return b.(browser.Browser), args.Error(1)
	}
	return nil, args.Error(1)
}

// -- Browser Mock --

// MockBrowser mocks browser.Browser.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	args := m.Called(ctx, opts)
	if c := args.Get(0); c != nil {
		return c.(browser.Context), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrowser) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Context Mock --

// MockContext mocks browser.Context.
type MockContext struct {
	mock.Mock
}

func (m *MockContext) NewPage(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.(browser.Page), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockContext) SetDefaultTimeout(d time.Duration) {
	m.Called(d)
}

func (m *MockContext) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Page Mock --

// MockPage mocks browser.Page.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Goto(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) MainFrame(ctx context.Context) (browser.Frame, error) {
	args := m.Called(ctx)
	if f := args.Get(0); f != nil {
		return f.(browser.Frame), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPage) Frames(ctx context.Context) ([]browser.Frame, error) {
	args := m.Called(ctx)
	if f := args.Get(0); f != nil {
		return f.([]browser.Frame), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPage) Content(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Console() []browser.ConsoleEntry {
	args := m.Called()
	if c := args.Get(0); c != nil {
		return c.([]browser.ConsoleEntry)
	}
	return nil
}

// -- Frame Mock --

// MockFrame mocks browser.Frame.
type MockFrame struct {
	mock.Mock
}

func (m *MockFrame) ID() string   { return m.Called().String(0) }
func (m *MockFrame) Name() string { return m.Called().String(0) }
func (m *MockFrame) URL() string  { return m.Called().String(0) }

func (m *MockFrame) WaitForState(ctx context.Context, state browser.LoadState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *MockFrame) Query(ctx context.Context, q browser.Query) ([]browser.Element, error) {
	args := m.Called(ctx, q)
	if e := args.Get(0); e != nil {
		return e.([]browser.Element), args.Error(1)
	}
	return nil, args.Error(1)
}

// -- Element Mock --

// MockElement mocks browser.Element.
type MockElement struct {
	mock.Mock
}

func (m *MockElement) Click(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockElement) Focus(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockElement) IsVisible(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) SetFiles(ctx context.Context, paths []string) error {
	return m.Called(ctx, paths).Error(0)
}

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Describe() string { return m.Called().String(0) }
