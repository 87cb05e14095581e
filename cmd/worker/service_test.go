package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeConsumer struct {
	started bool
	err     error
}

func (f *fakeConsumer) Run(ctx context.Context) error {
	f.started = true
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestServiceStopsBeforeConsumingWhenDependencyDown(t *testing.T) {
	payments := &fakeConsumer{}
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		DB:       fakePinger{},
		Redis:    fakePinger{err: errors.New("connection refused")},
		PubSub:   fakePinger{},
		Payments: payments,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness error")
	}
	if payments.started {
		t.Fatal("consumer should not start while a dependency is down")
	}
}

func TestServiceReturnsConsumerFailure(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		DB:       fakePinger{},
		Redis:    fakePinger{},
		PubSub:   fakePinger{},
		Payments: &fakeConsumer{err: boom},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}

func TestNewServiceRequiresConsumer(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop(), DB: fakePinger{}, Redis: fakePinger{}, PubSub: fakePinger{}})
	if err == nil {
		t.Fatal("expected error without payment consumer")
	}
}
