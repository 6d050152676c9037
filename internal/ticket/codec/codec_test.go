package codec

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"gatepass/internal/ticket/models"
	"gatepass/pkg/platform/sentinel"
)

type CodecSuite struct {
	suite.Suite
	codec *Codec
}

func TestCodecSuite(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}

func (s *CodecSuite) SetupTest() {
	var err error
	s.codec, err = New("test-ticket-secret")
	s.Require().NoError(err)
}

func testPayload() models.TicketPayload {
	return models.TicketPayload{
		GuestID:       "g1",
		GuestName:     "Ada Lovelace",
		GuestEmail:    "ada@example.com",
		EventID:       "e1",
		EventName:     "Launch Party",
		IssuedAt:      1700000000000,
		SchemaVersion: models.PayloadVersion,
	}
}

func (s *CodecSuite) TestNew() {
	s.Run("empty secret returns error", func() {
		_, err := New("")
		s.Error(err)
	})

	s.Run("non-empty secret returns codec", func() {
		c, err := New("k")
		s.NoError(err)
		s.NotNil(c)
	})
}

func (s *CodecSuite) TestRoundTrip() {
	payload := testPayload()
	credential := s.codec.Encode(payload)
	s.NotEmpty(credential)
	s.GreaterOrEqual(len(credential), 20)

	// Credential must stay within the base64 alphabet for QR embedding.
	_, err := base64.StdEncoding.DecodeString(credential)
	s.NoError(err)

	decoded, err := s.codec.Decode(credential)
	s.Require().NoError(err)
	s.Equal(payload, decoded)
}

func (s *CodecSuite) TestEncodeIsNonDeterministic() {
	payload := testPayload()
	first := s.codec.Encode(payload)
	second := s.codec.Encode(payload)
	s.NotEqual(first, second)

	decodedFirst, err := s.codec.Decode(first)
	s.Require().NoError(err)
	decodedSecond, err := s.codec.Decode(second)
	s.Require().NoError(err)
	s.Equal(decodedFirst, decodedSecond)
}

func (s *CodecSuite) TestDecodeFailures() {
	s.Run("garbage input", func() {
		_, err := s.codec.Decode("not!!base64@@")
		s.True(errors.Is(err, sentinel.ErrInvalidCredential))
	})

	s.Run("truncated ciphertext", func() {
		credential := s.codec.Encode(testPayload())
		raw, decodeErr := base64.StdEncoding.DecodeString(credential)
		s.Require().NoError(decodeErr)
		truncated := base64.StdEncoding.EncodeToString(raw[:len(raw)/2])

		_, err := s.codec.Decode(truncated)
		s.True(errors.Is(err, sentinel.ErrInvalidCredential))
	})

	s.Run("key mismatch", func() {
		other, newErr := New("a-different-secret")
		s.Require().NoError(newErr)
		credential := other.Encode(testPayload())

		_, err := s.codec.Decode(credential)
		s.True(errors.Is(err, sentinel.ErrInvalidCredential))
	})

	s.Run("missing required guest fields", func() {
		payload := testPayload()
		payload.GuestEmail = ""
		credential := s.codec.Encode(payload)

		_, err := s.codec.Decode(credential)
		s.True(errors.Is(err, sentinel.ErrInvalidCredential))
	})
}

func (s *CodecSuite) TestDecodeLeniency() {
	s.Run("missing optional fields are tolerated", func() {
		payload := models.TicketPayload{GuestID: "g1", GuestName: "Ada", GuestEmail: "ada@example.com"}
		decoded, err := s.codec.Decode(s.codec.Encode(payload))
		s.NoError(err)
		s.Equal("g1", decoded.GuestID)
		s.Zero(decoded.SchemaVersion)
	})

	s.Run("future schema version is informational only", func() {
		payload := testPayload()
		payload.SchemaVersion = models.PayloadVersion + 7
		decoded, err := s.codec.Decode(s.codec.Encode(payload))
		s.NoError(err)
		s.Equal(models.PayloadVersion+7, decoded.SchemaVersion)
	})
}
