package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rmr/internal/duplicates/models"
	"rmr/internal/duplicates/store"
	identity "rmr/internal/identity/models"
	"rmr/internal/identity/store/client"
	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/requestcontext"
	"rmr/pkg/testutil"
)

type DetectSuite struct {
	suite.Suite
	ctx     context.Context
	clients *client.InMemory
	service *Service
}

func TestDetectSuite(t *testing.T) {
	suite.Run(t, new(DetectSuite))
}

func (s *DetectSuite) SetupTest() {
	s.ctx = requestcontext.WithOperator(
		requestcontext.WithTime(context.Background(), time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)), "sam")
	s.clients = client.NewInMemory()
	logger, _ := testutil.NewLogger()
	s.service = New(s.clients, store.NewInMemory(), WithLogger(logger))
}

func (s *DetectSuite) add(id string, mutate func(*identity.Client)) {
	c := &identity.Client{ID: domain.ClientID(id), PrimaryEmail: id + "@x.com"}
	mutate(c)
	s.Require().NoError(s.clients.Create(context.Background(), c))
}

func (s *DetectSuite) TestScenarioMix() {
	s.add("w1", func(c *identity.Client) { c.LastName = "Ward" })
	s.add("w2", func(c *identity.Client) { c.LastName = "Ward" })
	s.add("p1", func(c *identity.Client) { c.Phone = "+447000000000" })
	s.add("p2", func(c *identity.Client) { c.Phone = "07000000000" })

	report, err := s.service.Detect(s.ctx)
	s.Require().NoError(err)
	s.Equal(4, report.Clients)
	s.Equal(1, report.High)
	s.Equal(1, report.Medium)
	s.Equal(2, report.Queue.New)

	for _, c := range report.Candidates {
		switch c.PrimaryClientID {
		case "w1":
			s.Equal(models.ConfidenceMedium, c.Confidence)
		case "p1":
			s.Equal(models.ConfidenceHigh, c.Confidence)
		default:
			s.Failf("unexpected primary", "%s", c.PrimaryClientID)
		}
	}
}

func (s *DetectSuite) TestRepeatedDetectionIsStable() {
	s.add("a", func(c *identity.Client) { c.DogName = "Rex" })
	s.add("b", func(c *identity.Client) { c.DogName = "rex" })
	s.add("c", func(c *identity.Client) { c.DogName = "Rex"; c.Phone = "0123" })

	first, err := s.service.Detect(s.ctx)
	s.Require().NoError(err)
	second, err := s.service.Detect(s.ctx)
	s.Require().NoError(err)
	s.Equal(first.Candidates, second.Candidates)
	s.Equal(0, second.Queue.New)
}

func (s *DetectSuite) TestReviewSurvivesRedetection() {
	s.add("a", func(c *identity.Client) { c.LastName = "Ward" })
	s.add("b", func(c *identity.Client) { c.LastName = "Ward" })
	report, err := s.service.Detect(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(report.Candidates, 1)
	id := report.Candidates[0].ID

	reviewed, err := s.service.Review(s.ctx, id, models.ReviewDismissed)
	s.Require().NoError(err)
	s.Equal("sam", reviewed.ReviewedBy)

	report, err = s.service.Detect(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.ReviewDismissed, report.Candidates[0].ReviewStatus)

	pending, err := s.service.List(s.ctx, models.ReviewPending)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *DetectSuite) TestReviewUnknownCandidate() {
	_, err := s.service.Review(s.ctx, "missing", models.ReviewConfirmed)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
