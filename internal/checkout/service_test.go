package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/verified-checkout/internal/common"
	"github.com/noah-isme/verified-checkout/internal/lease"
	"github.com/noah-isme/verified-checkout/internal/payment"
	"github.com/noah-isme/verified-checkout/internal/pricing"
	"github.com/noah-isme/verified-checkout/internal/verify"
)

type fakeGateway struct {
	customers map[string]payment.Customer
	methods   []payment.CardMethod
	methodErr error

	createdCustomer *payment.Customer
	sessionSuccess  string
	sessionCancel   string

	chargeReq *payment.ChargeRequest
	chargeRes payment.Intent
	chargeErr error
}

func (f *fakeGateway) CreateCustomer(_ context.Context, phone, email string) (payment.Customer, error) {
	c := payment.Customer{ID: "cus_new", Phone: phone, Email: email}
	f.createdCustomer = &c
	return c, nil
}

func (f *fakeGateway) GetCustomer(_ context.Context, id string) (payment.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return payment.Customer{}, payment.ErrUnknownCustomer
	}
	return c, nil
}

func (f *fakeGateway) CreateSetupSession(_ context.Context, customerID, successURL, cancelURL string) (payment.SetupSession, error) {
	f.sessionSuccess = successURL
	f.sessionCancel = cancelURL
	return payment.SetupSession{ID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

func (f *fakeGateway) ResolveSetupSession(_ context.Context, id string) (*payment.SetupSession, error) {
	if id == "" || id == "cs_gone" {
		return nil, nil
	}
	cus := payment.Customer{ID: "cus_123", Email: "jenny@example.com"}
	return &payment.SetupSession{ID: id, Customer: &cus, PaymentMethod: &payment.CardMethod{ID: "pm_1", Last4: "4242"}}, nil
}

func (f *fakeGateway) ListCardMethods(_ context.Context, _ string) ([]payment.CardMethod, error) {
	return f.methods, f.methodErr
}

func (f *fakeGateway) Charge(_ context.Context, req payment.ChargeRequest) (payment.Intent, error) {
	f.chargeReq = &req
	if f.chargeErr != nil {
		return payment.Intent{}, f.chargeErr
	}
	return f.chargeRes, nil
}

type fakeVerifier struct {
	lookupRes string
	lookupErr error
	startRes  string
	startErr  error
	checkRes  string
	checkErr  error
	checked   []string
}

func (f *fakeVerifier) Lookup(_ context.Context, phone string) (string, error) {
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	if f.lookupRes != "" {
		return f.lookupRes, nil
	}
	return phone, nil
}

func (f *fakeVerifier) Start(_ context.Context, _ string) (string, error) {
	return f.startRes, f.startErr
}

func (f *fakeVerifier) Check(_ context.Context, _ string, code string) (string, error) {
	f.checked = append(f.checked, code)
	return f.checkRes, f.checkErr
}

func newTestService(g *fakeGateway, v *fakeVerifier) *Service {
	return &Service{
		Gateway:  g,
		Verifier: v,
		Quoter:   pricing.Fixed{Amount: 1099, Currency: "USD"},
		Lease:    lease.CustomerLease{},
		Logger:   zerolog.Nop(),
	}
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestOnboardInvalidPhone(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw, &fakeVerifier{lookupErr: verify.ErrInvalidNumber})

	_, err := svc.Onboard(context.Background(), "not-a-number", "jenny@example.com", "http://localhost:4242")
	require.Equal(t, CodeInvalidPhoneNumber, appErrCode(t, err))
	require.Nil(t, gw.createdCustomer, "no customer may be created for an invalid number")
}

func TestOnboardBuildsRedirectTargets(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw, &fakeVerifier{lookupRes: "+15551234567"})

	out, err := svc.Onboard(context.Background(), "+1 555 123 4567", "jenny@example.com", "http://localhost:4242")
	require.NoError(t, err)
	require.Equal(t, "+15551234567", out.Customer.Phone, "customer must carry the normalised number")
	require.Equal(t, "http://localhost:4242/?session_id={CHECKOUT_SESSION_ID}", gw.sessionSuccess)
	require.Equal(t, "http://localhost:4242/", gw.sessionCancel)
	require.Equal(t, "https://checkout.example/cs_test", out.Session.URL)
}

func TestOnboardLookupOutage(t *testing.T) {
	svc := newTestService(&fakeGateway{}, &fakeVerifier{lookupErr: errors.New("connection refused")})

	_, err := svc.Onboard(context.Background(), "+15551234567", "jenny@example.com", "http://localhost:4242")
	require.Equal(t, CodeProviderUnavailable, appErrCode(t, err))
}

func TestStartVerificationUnknownCustomer(t *testing.T) {
	svc := newTestService(&fakeGateway{customers: map[string]payment.Customer{}}, &fakeVerifier{})

	_, err := svc.StartVerification(context.Background(), "cus_missing")
	require.Equal(t, CodeUnknownCustomer, appErrCode(t, err))
}

func TestStartVerificationPending(t *testing.T) {
	gw := &fakeGateway{customers: map[string]payment.Customer{
		"cus_123": {ID: "cus_123", Phone: "+15551234567"},
	}}
	svc := newTestService(gw, &fakeVerifier{startRes: verify.StatusPending})

	status, err := svc.StartVerification(context.Background(), "cus_123")
	require.NoError(t, err)
	require.Equal(t, verify.StatusPending, status)
}

func TestCheckAndChargeRejectedCode(t *testing.T) {
	gw := &fakeGateway{
		customers: map[string]payment.Customer{"cus_123": {ID: "cus_123", Phone: "+15551234567"}},
		methods:   []payment.CardMethod{{ID: "pm_1"}},
	}
	svc := newTestService(gw, &fakeVerifier{checkRes: verify.StatusPending})

	_, err := svc.CheckAndCharge(context.Background(), "cus_123", "000000", nil)
	require.Equal(t, CodeVerificationFailed, appErrCode(t, err))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "Incorrect code, please try again", appErr.Message)
	require.Nil(t, gw.chargeReq, "a rejected code must never reach the charge step")
}

func TestCheckAndChargeAmbiguousMethodCount(t *testing.T) {
	for name, methods := range map[string][]payment.CardMethod{
		"none": nil,
		"two":  {{ID: "pm_1"}, {ID: "pm_2"}},
	} {
		t.Run(name, func(t *testing.T) {
			gw := &fakeGateway{
				customers: map[string]payment.Customer{"cus_123": {ID: "cus_123", Phone: "+15551234567"}},
				methods:   methods,
			}
			svc := newTestService(gw, &fakeVerifier{checkRes: verify.StatusApproved})

			_, err := svc.CheckAndCharge(context.Background(), "cus_123", "123456", nil)
			require.Equal(t, CodeAmbiguousPaymentMethod, appErrCode(t, err))
			require.Nil(t, gw.chargeReq, "ambiguous method sets must not be charged")
		})
	}
}

func TestCheckAndChargeApproved(t *testing.T) {
	gw := &fakeGateway{
		customers: map[string]payment.Customer{"cus_123": {ID: "cus_123", Phone: "+15551234567"}},
		methods:   []payment.CardMethod{{ID: "pm_1", Last4: "4242"}},
		chargeRes: payment.Intent{ID: "pi_1", Status: payment.IntentStatusSucceeded, Amount: 1099, Currency: "USD"},
	}
	verifier := &fakeVerifier{checkRes: verify.StatusApproved}
	svc := newTestService(gw, verifier)

	intent, err := svc.CheckAndCharge(context.Background(), "cus_123", "123456", json.RawMessage(`[{"id":"demo-item"}]`))
	require.NoError(t, err)
	require.Equal(t, []string{"123456"}, verifier.checked)
	require.NotNil(t, gw.chargeReq)
	require.Equal(t, "pm_1", gw.chargeReq.PaymentMethodID)
	require.Equal(t, int64(1099), gw.chargeReq.Amount)
	require.Equal(t, "USD", gw.chargeReq.Currency)
	require.Equal(t, payment.IntentStatusSucceeded, intent.Status)
}

func TestCheckAndChargeUnknownCustomer(t *testing.T) {
	svc := newTestService(&fakeGateway{customers: map[string]payment.Customer{}}, &fakeVerifier{})

	_, err := svc.CheckAndCharge(context.Background(), "cus_missing", "123456", nil)
	require.Equal(t, CodeUnknownCustomer, appErrCode(t, err))
}

func TestCheckAndChargeMalformedCart(t *testing.T) {
	gw := &fakeGateway{
		customers: map[string]payment.Customer{"cus_123": {ID: "cus_123", Phone: "+15551234567"}},
		methods:   []payment.CardMethod{{ID: "pm_1"}},
	}
	svc := newTestService(gw, &fakeVerifier{checkRes: verify.StatusApproved})

	_, err := svc.CheckAndCharge(context.Background(), "cus_123", "123456", json.RawMessage(`{not json`))
	require.Error(t, err)
	require.Nil(t, gw.chargeReq)
}
