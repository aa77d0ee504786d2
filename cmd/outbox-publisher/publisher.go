package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// publisher is the slice of a Pub/Sub publisher the relay needs. Publish is
// asynchronous; the returned result settles once the broker acks or fails.
type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{p: p}
}

func (g *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}

func (g *gcpPublisher) ResumePublish(orderingKey string) {
	g.p.ResumePublish(orderingKey)
}

var errNilResult = errors.New("publisher returned no result")
