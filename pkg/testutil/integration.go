package testutil

import (
	"context"
	"os"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// IntegrationTestSuite provides a suite context and a scratch directory
// that lives for the whole suite.
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	tempDir   string
	startTime time.Time
}

// SetupSuite runs before all tests in the suite.
func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()

	tempDir, err := os.MkdirTemp("", "cdm-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir
}

// TearDownSuite runs after all tests in the suite.
func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()
	if s.tempDir != "" {
		_ = os.RemoveAll(s.tempDir)
	}
	s.T().Logf("suite completed in %v", time.Since(s.startTime))
}

// Context returns the suite context.
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the suite scratch directory.
func (s *IntegrationTestSuite) TempDir() string {
	return s.tempDir
}

// MkdirTemp creates a fresh directory below TempDir.
func (s *IntegrationTestSuite) MkdirTemp(pattern string) string {
	dir, err := os.MkdirTemp(s.tempDir, pattern)
	require.NoError(s.T(), err)
	return dir
}
