package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"flock/internal/followup/models"
	"flock/internal/storage"
	"flock/internal/storage/memory"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/requestcontext"
)

type SinkSuite struct {
	suite.Suite
	sink *Sink
	ctx  context.Context
	now  time.Time
}

func TestSinkSuite(t *testing.T) {
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupTest() {
	s.sink = NewSink(storage.NewRunner(memory.New()), nil)
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *SinkSuite) TestCreateAndListOpen() {
	personID := id.NewPersonID()
	absentee, err := s.sink.Create(s.ctx, models.CreateRequest{PersonID: personID, Type: "absentee", Title: "Check in"})
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, absentee.Status)
	s.Equal("medium", absentee.Priority)
	s.Equal(s.now, absentee.CreatedAt)

	_, err = s.sink.Create(s.ctx, models.CreateRequest{PersonID: personID, Type: "birthday", Title: "Call"})
	s.Require().NoError(err)

	open, err := s.sink.ListOpen(s.ctx, personID, "absentee")
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal(absentee.ID, open[0].ID)

	all, err := s.sink.ListOpen(s.ctx, personID, "")
	s.Require().NoError(err)
	s.Len(all, 2)

	none, err := s.sink.ListOpen(s.ctx, id.NewPersonID(), "absentee")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *SinkSuite) TestComplete() {
	personID := id.NewPersonID()
	f, err := s.sink.Create(s.ctx, models.CreateRequest{PersonID: personID, Type: "absentee", Title: "Check in"})
	s.Require().NoError(err)

	done, err := s.sink.Complete(s.ctx, personID, f.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDone, done.Status)
	s.Require().NotNil(done.CompletedAt)

	open, err := s.sink.ListOpen(s.ctx, personID, "absentee")
	s.Require().NoError(err)
	s.Empty(open)

	_, err = s.sink.Complete(s.ctx, personID, f.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	_, err = s.sink.Complete(s.ctx, personID, id.NewFollowUpID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *SinkSuite) TestCreate_Validation() {
	_, err := s.sink.Create(s.ctx, models.CreateRequest{Type: "absentee", Title: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.sink.Create(s.ctx, models.CreateRequest{PersonID: id.NewPersonID(), Title: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
