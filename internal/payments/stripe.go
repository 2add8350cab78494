package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// StripeProvider implements Provider against the Stripe PaymentIntents API.
type StripeProvider struct {
	intents paymentintent.Client
}

type stripeOptions struct {
	baseURL string
	client  *http.Client
	retries int64
	logger  zerolog.Logger
}

type StripeOption func(*stripeOptions)

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) StripeOption {
	return func(o *stripeOptions) { o.client = c }
}

// WithBaseURL points the provider at a different API host.
func WithBaseURL(u string) StripeOption {
	return func(o *stripeOptions) { o.baseURL = u }
}

// WithNetworkRetries sets how often the client retries transient failures.
// The default is none; callers bound each call with a deadline instead.
func WithNetworkRetries(n int64) StripeOption {
	return func(o *stripeOptions) { o.retries = n }
}

// WithLogger routes the client's own diagnostics to l.
func WithLogger(l zerolog.Logger) StripeOption {
	return func(o *stripeOptions) { o.logger = l }
}

func NewStripeProvider(apiKey string, opts ...StripeOption) *StripeProvider {
	o := stripeOptions{
		baseURL: stripe.APIURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  log.Logger,
	}
	for _, fn := range opts {
		fn(&o)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(o.baseURL),
		HTTPClient:        o.client,
		MaxNetworkRetries: stripe.Int64(o.retries),
		LeveledLogger:     zerologLeveled{l: o.logger.With().Str("component", "stripe").Logger()},
	})
	return &StripeProvider{intents: paymentintent.Client{B: backend, Key: apiKey}}
}

func (s *StripeProvider) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe create intent: %w", describe(err))
	}
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

func (s *StripeProvider) Lookup(ctx context.Context, paymentID string) (Payment, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.intents.Get(paymentID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && (se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, fmt.Errorf("stripe lookup: %w", describe(err))
	}

	p := Payment{
		ID:       pi.ID,
		RawState: string(pi.Status),
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Metadata: make(map[string]string, len(pi.Metadata)),
	}
	p.Status = normalizeStripeStatus(p.RawState)
	for k, v := range pi.Metadata {
		p.Metadata[k] = v
	}
	return p, nil
}

// apiError keeps the API message readable while preserving the typed error.
type apiError struct{ se *stripe.Error }

func (e apiError) Error() string {
	if e.se.Msg != "" {
		return fmt.Sprintf("status %d: %s", e.se.HTTPStatusCode, e.se.Msg)
	}
	return fmt.Sprintf("status %d", e.se.HTTPStatusCode)
}

func (e apiError) Unwrap() error { return e.se }

func describe(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return apiError{se: se}
	}
	return err
}

func normalizeStripeStatus(s string) Status {
	switch stripe.PaymentIntentStatus(s) {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSettled
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture:
		return StatusPending
	default:
		return StatusFailed
	}
}

// zerologLeveled adapts zerolog to the client's logger interface.
type zerologLeveled struct{ l zerolog.Logger }

func (z zerologLeveled) Debugf(format string, v ...interface{}) { z.l.Debug().Msgf(format, v...) }
func (z zerologLeveled) Infof(format string, v ...interface{})  { z.l.Debug().Msgf(format, v...) }
func (z zerologLeveled) Warnf(format string, v ...interface{})  { z.l.Warn().Msgf(format, v...) }
func (z zerologLeveled) Errorf(format string, v ...interface{}) { z.l.Error().Msgf(format, v...) }
