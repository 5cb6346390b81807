package conferences

import (
	"context"
	"time"

	"confwaitlist/pkg/logger"
)

// StartArmer is the conference-creation side of the Timer/Event Bus:
// arming the one-per-conference start timer (§4.4 item 2). Modeled as
// an interface so this package never imports the broker package
// directly, the same seam waitlist.ExpiryArmer uses.
type StartArmer interface {
	ArmConferenceStart(ctx context.Context, conferenceName string, start time.Time) error
}

// Service wraps the conference repository with the side effect a
// creation must have: arming its start timer. Kept separate from
// Repository so the repository stays a pure persistence slice.
type Service struct {
	repo  Repository
	armer StartArmer
}

func NewService(repo Repository, armer StartArmer) *Service {
	return &Service{repo: repo, armer: armer}
}

func (s *Service) CreateConference(ctx context.Context, req CreateConferenceRequest) (*Conference, error) {
	conf, err := s.repo.CreateConference(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.armer.ArmConferenceStart(ctx, conf.Name, conf.Start); err != nil {
		logger.GetDefault().WithError(err).Warn("failed to arm conference-start timer",
			"conference_name", conf.Name)
	}
	return conf, nil
}
