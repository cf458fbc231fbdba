// Package publisher defines how run completion events leave the crawler.
package publisher

import "context"

// Publisher delivers one event payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
