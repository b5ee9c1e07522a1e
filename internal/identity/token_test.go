package identity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	dErrors "otakudb/pkg/domain-errors"
)

// =============================================================================
// Token Service Test Suite
// =============================================================================

type TokenSuite struct {
	suite.Suite
	tokens *TokenService
}

func TestTokenSuite(t *testing.T) {
	suite.Run(t, new(TokenSuite))
}

func (s *TokenSuite) SetupTest() {
	s.tokens = NewTokenService("test-signing-key", "otakudb")
}

func (s *TokenSuite) TestIssueAndValidate() {
	userID := uuid.New()

	token, err := s.tokens.Issue(userID, time.Hour)
	s.Require().NoError(err)

	claims, err := s.tokens.Validate(token)
	s.Require().NoError(err)
	s.Equal("otakudb", claims.Issuer)

	parsed, err := claims.ParseUserID()
	s.Require().NoError(err)
	s.Equal(userID, parsed)
}

func (s *TokenSuite) TestExpiredToken() {
	token, err := s.tokens.Issue(uuid.New(), -time.Minute)
	s.Require().NoError(err)

	_, err = s.tokens.Validate(token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *TokenSuite) TestWrongKey() {
	other := NewTokenService("different-key", "otakudb")
	token, err := other.Issue(uuid.New(), time.Hour)
	s.Require().NoError(err)

	_, err = s.tokens.Validate(token)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *TokenSuite) TestGarbageToken() {
	_, err := s.tokens.Validate("not.a.jwt")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *TokenSuite) TestBadUserIDClaim() {
	claims := &Claims{UserID: "not-a-uuid"}
	_, err := claims.ParseUserID()
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
