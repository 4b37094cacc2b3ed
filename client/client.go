// Package client is the Go client of the REST API, for server-side consumers such as the web frontend renderer.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/activity"
	"github.com/iradukundapaci/communiserver-sub002/core/ratelimit"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
)

const defaultTimeout = 10 * time.Second

var ErrRateLimited = errors.New("too many profile requests")

// RateLimitedError is returned by Profile when the limiter refuses the call.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (err *RateLimitedError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrRateLimited, err.RetryAfter.Round(time.Millisecond))
}

func (err *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// APIError is a non 2xx answer of the API.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (err *APIError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("api error: %d %s", err.StatusCode, http.StatusText(err.StatusCode))
	}
	return fmt.Sprintf("api error: %d %s", err.StatusCode, err.Message)
}

type Client struct {
	http        *resty.Client
	systemToken string
	limiter     *ratelimit.Limiter
	logger      core.Logger
}

// New returns a client of the API at baseURL, eg. "http://localhost:8000/api/v1".
func New(baseURL, systemToken string, logger core.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		http:        httpClient,
		systemToken: systemToken,
		limiter:     ratelimit.NewProfileLimiter(core.UTCNow),
		logger:      logger,
	}
}

// NewFromConfig uses the configured API base URL and system token.
func NewFromConfig(conf *core.Config, logger core.Logger) *Client {
	return New(conf.APIBaseURL, conf.Server.SystemToken, logger)
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	req := c.http.R().SetContext(ctx).SetError(&APIError{})
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// system authenticates the request with the system token.
func (c *Client) system(ctx context.Context) *resty.Request {
	return c.request(ctx, c.systemToken)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		apiErr, ok := resp.Error().(*APIError)
		if !ok || apiErr == nil {
			apiErr = &APIError{}
		}
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}

// Profile fetches the user behind token. Calls are limited to 3 per 30 seconds, 2 seconds apart.
func (c *Client) Profile(ctx context.Context, token string) (user.User, error) {
	if ok, wait := c.limiter.Reserve(); !ok {
		return user.User{}, &RateLimitedError{RetryAfter: wait}
	}

	var usr user.User
	resp, err := c.request(ctx, token).SetResult(&usr).Get("/users/me")
	if err := check(resp, err); err != nil {
		return user.User{}, errors.Wrap(err, "fetching profile")
	}
	return usr, nil
}

// PublicActivities returns the latest activities. When the API cannot serve them the
// sample activities are returned instead and live is false.
func (c *Client) PublicActivities(ctx context.Context, size int) (acts []activity.Activity, live bool) {
	var page core.Page[activity.Activity]
	req := c.request(ctx, "").SetResult(&page)
	if size > 0 {
		req.SetQueryParam("size", strconv.Itoa(size))
	}
	resp, err := req.Get("/public/activities")
	if err := check(resp, err); err != nil {
		if c.logger != nil {
			c.logger.Warn("fetching public activities failed, serving samples", err)
		}
		return SampleActivities(size), false
	}
	return page.Items, true
}

// Users lists the users matching filter, on behalf of the system.
func (c *Client) Users(ctx context.Context, filter user.QueryFilter, pq core.PageQuery) (core.Page[user.User], error) {
	var page core.Page[user.User]
	req := c.system(ctx).SetResult(&page)
	if filter.Role != "" {
		req.SetQueryParam("role", filter.Role)
	}
	if filter.IsActive != nil {
		req.SetQueryParam("isActive", strconv.FormatBool(*filter.IsActive))
	}
	if pq.Page > 0 {
		req.SetQueryParam("page", strconv.Itoa(pq.Page))
	}
	if pq.Size > 0 {
		req.SetQueryParam("size", strconv.Itoa(pq.Size))
	}
	if pq.Search != "" {
		req.SetQueryParam("q", pq.Search)
	}

	resp, err := req.Get("/users")
	if err := check(resp, err); err != nil {
		return core.Page[user.User]{}, errors.Wrap(err, "querying users")
	}
	return page, nil
}

// CreateUser creates a user on behalf of the system.
func (c *Client) CreateUser(ctx context.Context, nu user.NewUser) (user.User, error) {
	var usr user.User
	resp, err := c.system(ctx).SetBody(nu).SetResult(&usr).Post("/users")
	if err := check(resp, err); err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}
