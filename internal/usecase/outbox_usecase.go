package usecase

import (
	"context"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/service"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/pagination"
	"github.com/sirupsen/logrus"
)

const (
	defaultOutboxPage = 50
	maxOutboxPage     = 200
)

type Outbox struct {
	repo repository.OutboxRepository
	log  *logrus.Logger
}

var _ service.OutboxService = (*Outbox)(nil)

func NewOutbox(repo repository.OutboxRepository, log *logrus.Logger) *Outbox {
	return &Outbox{repo: repo, log: log}
}

func (o *Outbox) List(ctx context.Context, filter repository.OutboxFilter) ([]entity.OutboxEvent, string, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultOutboxPage
	}
	if filter.Limit > maxOutboxPage {
		filter.Limit = maxOutboxPage
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, "", repository.ErrInvalidFilter
	}

	events, err := o.repo.List(ctx, filter)
	if err != nil {
		o.log.WithError(err).Error("list outbox failed")
		return nil, "", err
	}
	nextCursor := ""
	if len(events) == filter.Limit {
		last := events[len(events)-1]
		nextCursor = pagination.Encode(last.CreatedAt, last.ID)
	}
	return events, nextCursor, nil
}
