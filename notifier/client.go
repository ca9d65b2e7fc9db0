package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	gresty "github.com/go-resty/resty/v2"
)

var errCallbackHTTPError = errors.New("callback http error")

const defaultCallbackTimeout = 10 * time.Second

// CallbackClient posts events to service webhooks. Any non-2xx answer is a
// failed delivery.
type CallbackClient struct {
	client *gresty.Client
}

func NewCallbackClient(timeout time.Duration) *CallbackClient {
	if timeout <= 0 {
		timeout = defaultCallbackTimeout
	}
	client := gresty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	client.OnAfterResponse(func(c *gresty.Client, r *gresty.Response) error {
		statusCode := r.StatusCode()
		if statusCode < 200 || statusCode >= 300 {
			method := r.Request.Method
			url := r.Request.URL
			return fmt.Errorf("%d cannot %s %s: %w", statusCode, method, url, errCallbackHTTPError)
		}
		return nil
	})
	return &CallbackClient{client: client}
}

func (cc *CallbackClient) Deliver(ctx context.Context, callbackUrl string, event *Event) error {
	if callbackUrl == "" {
		return fmt.Errorf("empty callback url for event %s", event.Id)
	}
	_, err := cc.client.R().
		SetContext(ctx).
		SetBody(event).
		Post(callbackUrl)
	if err != nil {
		log.Warn("callback delivery failed", "url", callbackUrl, "event", event.Id, "err", err)
		return err
	}
	log.Debug("callback delivered", "url", callbackUrl, "event", event.Id, "kind", event.Kind)
	return nil
}
