package stripe

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/wildroots/wildroots-backend/pkg/money"
)

// Metadata keys stamped on checkout sessions and payment intents so webhook
// events can be tied back to the pending donation.
const (
	MetadataDonationID    = "donation_id"
	MetadataProjectID     = "project_id"
	MetadataUserID        = "user_id"
	MetadataProjectAmount = "project_amount"
	MetadataCoversFees    = "covers_fees"
)

var errNotInitialized = errors.New("stripe client not initialized")

// CheckoutSessionRequest describes a single-line donation checkout.
type CheckoutSessionRequest struct {
	DonationID    uuid.UUID
	ProjectID     uuid.UUID
	UserID        *uuid.UUID
	ProjectTitle  string
	Amount        money.Cents
	ProjectAmount money.Cents
	CoversFees    bool
	DonorEmail    string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the subset of the created session the API returns.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckoutSession opens a hosted Checkout Session for the donation amount.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	if c == nil || c.api == nil {
		return nil, errNotInitialized
	}
	params := BuildCheckoutSessionParams(req)
	params.SetIdempotencyKey("checkout-" + req.DonationID.String())

	sess, err := c.api.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// BuildCheckoutSessionParams maps a request onto Stripe's params, copying the
// donation metadata to both the session and its payment intent.
func BuildCheckoutSessionParams(req CheckoutSessionRequest) *stripe.CheckoutSessionCreateParams {
	metadata := map[string]string{
		MetadataDonationID:    req.DonationID.String(),
		MetadataProjectID:     req.ProjectID.String(),
		MetadataProjectAmount: strconv.FormatInt(int64(req.ProjectAmount), 10),
		MetadataCoversFees:    strconv.FormatBool(req.CoversFees),
	}
	if req.UserID != nil {
		metadata[MetadataUserID] = req.UserID.String()
	}

	name := req.ProjectTitle
	if name == "" {
		name = "Conservation project donation"
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.DonationID.String()),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(int64(req.Amount)),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if req.DonorEmail != "" {
		params.CustomerEmail = stripe.String(req.DonorEmail)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	return params
}

// BalanceTransaction carries the settled fee and net for a charge.
type BalanceTransaction struct {
	ID  string
	Fee money.Cents
	Net money.Cents
}

// GetBalanceTransaction fetches the fee/net detail Stripe reports for a charge.
func (c *Client) GetBalanceTransaction(ctx context.Context, id string) (*BalanceTransaction, error) {
	if c == nil || c.api == nil {
		return nil, errNotInitialized
	}
	if id == "" {
		return nil, errors.New("balance transaction id is required")
	}
	bt, err := c.api.V1BalanceTransactions.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	return &BalanceTransaction{ID: bt.ID, Fee: money.Cents(bt.Fee), Net: money.Cents(bt.Net)}, nil
}
