package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gatepass/internal/ticket/models"
	"gatepass/pkg/platform/sentinel"
)

type InMemoryBackendSuite struct {
	suite.Suite
	backend *InMemoryBackend
	ctx     context.Context
}

func TestInMemoryBackendSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBackendSuite))
}

func (s *InMemoryBackendSuite) SetupTest() {
	s.backend = NewInMemoryBackend(models.TierLocal)
	s.ctx = context.Background()
}

func memRecord(code string, expiresAt time.Time) *models.TicketRecord {
	return &models.TicketRecord{
		Code:       code,
		Guest:      models.Guest{ID: "g1", Name: "Ada", Email: "ada@example.com"},
		Event:      models.Event{ID: "e1", Name: "Launch Party"},
		Credential: "Y3JlZGVudGlhbC1ibG9i",
		CreatedAt:  time.Now(),
		ExpiresAt:  expiresAt,
		Tier:       models.TierLocal,
	}
}

func (s *InMemoryBackendSuite) TestSaveAndFind() {
	record := memRecord("e1_g1_1700000000000_abc123", time.Now().Add(time.Hour))
	s.Require().NoError(s.backend.Save(s.ctx, record))

	found, err := s.backend.Find(s.ctx, record.Code)
	s.Require().NoError(err)
	s.Equal(record.Guest, found.Guest)
	s.Equal(record.Event, found.Event)
	s.Equal(models.TierLocal, found.Tier)
}

func (s *InMemoryBackendSuite) TestFindUnknownCode() {
	_, err := s.backend.Find(s.ctx, "missing")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *InMemoryBackendSuite) TestUpdate() {
	s.Run("persists counter changes", func() {
		record := memRecord("code-update", time.Now().Add(time.Hour))
		s.Require().NoError(s.backend.Save(s.ctx, record))

		record.DownloadCount = 3
		record.Downloaded = true
		s.Require().NoError(s.backend.Update(s.ctx, record))

		found, err := s.backend.Find(s.ctx, record.Code)
		s.Require().NoError(err)
		s.Equal(3, found.DownloadCount)
		s.True(found.Downloaded)
	})

	s.Run("unknown code returns not found", func() {
		err := s.backend.Update(s.ctx, memRecord("never-saved", time.Now().Add(time.Hour)))
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})
}

func (s *InMemoryBackendSuite) TestDelete() {
	record := memRecord("code-delete", time.Now().Add(time.Hour))
	s.Require().NoError(s.backend.Save(s.ctx, record))
	s.Require().NoError(s.backend.Delete(s.ctx, record.Code))

	_, err := s.backend.Find(s.ctx, record.Code)
	s.True(errors.Is(err, sentinel.ErrNotFound))

	// Deleting an absent code is a no-op.
	s.NoError(s.backend.Delete(s.ctx, record.Code))
}

func (s *InMemoryBackendSuite) TestDeleteExpired() {
	now := time.Now()
	s.Require().NoError(s.backend.Save(s.ctx, memRecord("live", now.Add(time.Hour))))
	s.Require().NoError(s.backend.Save(s.ctx, memRecord("stale-1", now.Add(-time.Minute))))
	s.Require().NoError(s.backend.Save(s.ctx, memRecord("stale-2", now.Add(-time.Hour))))

	removed, err := s.backend.DeleteExpired(s.ctx, now)
	s.Require().NoError(err)
	s.Equal(2, removed)
	s.Equal(1, s.backend.Len())

	_, err = s.backend.Find(s.ctx, "live")
	s.NoError(err)
}
