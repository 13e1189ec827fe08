package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"flash-study/internal/config"
	"flash-study/internal/logger"
	"flash-study/internal/models"
)

var (
	// ErrPaymentsUnavailable is returned when no gateway secret is configured.
	ErrPaymentsUnavailable = errors.New("payments are not configured")
	// ErrPaymentNotSuccessful means the gateway reports the transaction as not paid.
	ErrPaymentNotSuccessful = errors.New("payment not successful")
)

const (
	PaymentPending = "pending"
	PaymentSuccess = "success"
	PaymentFailed  = "failed"
)

type PaystackConfig struct {
	SecretKey     string
	BaseURL       string
	CallbackURL   string
	MonthlyAmount int64
	YearlyAmount  int64
}

// PaymentInit is what the client needs to send the user to the gateway.
type PaymentInit struct {
	AuthorizationURL string          `json:"authorizationUrl"`
	Reference        string          `json:"reference"`
	Plan             models.PlanType `json:"plan"`
	Amount           int64           `json:"amount"`
}

type PaymentResult struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Plan      models.PlanType `json:"plan"`
	Profile   *models.Profile `json:"-"`
}

// PaymentService drives the gateway's initialize/verify transaction flow and
// activates premium on a verified payment.
type PaymentService struct {
	db       *sql.DB
	profiles *ProfileService
	cfg      PaystackConfig
	client   *http.Client
	log      *logger.Logger
	now      func() time.Time
}

func NewPaymentService(db *sql.DB, profiles *ProfileService, cfg PaystackConfig, client *http.Client, log *logger.Logger) *PaymentService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paystack.co"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PaymentService{
		db:       db,
		profiles: profiles,
		cfg:      cfg,
		client:   client,
		log:      log.With("service", "PaymentService"),
		now:      utcNow,
	}
}

func (s *PaymentService) Enabled() bool { return config.IsConfiguredKey(s.cfg.SecretKey) }

// AmountFor returns the plan price in major currency units.
func (s *PaymentService) AmountFor(plan models.PlanType) int64 {
	if plan == models.PlanYearly {
		return s.cfg.YearlyAmount
	}
	return s.cfg.MonthlyAmount
}

type paymentMetadata struct {
	UserID   string          `json:"userId"`
	PlanType models.PlanType `json:"planType"`
}

type initializeRequest struct {
	Email       string          `json:"email"`
	Amount      int64           `json:"amount"`
	Reference   string          `json:"reference"`
	CallbackURL string          `json:"callback_url,omitempty"`
	Metadata    paymentMetadata `json:"metadata"`
}

type gatewayEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Metadata  json.RawMessage `json:"metadata"`
}

// Initialize records a pending payment and opens a gateway transaction for it.
func (s *PaymentService) Initialize(ctx context.Context, userID, email string, plan models.PlanType) (*PaymentInit, error) {
	if !s.Enabled() {
		return nil, ErrPaymentsUnavailable
	}
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, plan)
	}
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	amount := s.AmountFor(plan)
	if amount <= 0 {
		return nil, fmt.Errorf("%w: plan %s has no price", ErrInvalidInput, plan)
	}

	reference, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate payment reference: %w", err)
	}

	payload, err := json.Marshal(initializeRequest{
		Email:       email,
		Amount:      amount * 100,
		Reference:   reference,
		CallbackURL: s.cfg.CallbackURL,
		Metadata:    paymentMetadata{UserID: userID, PlanType: plan},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}

	var data initializeData
	if err := s.call(ctx, http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return nil, fmt.Errorf("initialize transaction: %w", err)
	}
	if data.AuthorizationURL == "" {
		return nil, fmt.Errorf("initialize transaction: gateway returned no authorization url")
	}
	if data.Reference != "" {
		reference = data.Reference
	}

	now := s.now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (reference, user_id, plan, amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, reference, userID, plan, amount, PaymentPending, now, now); err != nil {
		return nil, fmt.Errorf("record payment %s: %w", reference, err)
	}

	s.log.Info("payment initialized", "reference", reference, "plan", plan, "user", userID)
	return &PaymentInit{
		AuthorizationURL: data.AuthorizationURL,
		Reference:        reference,
		Plan:             plan,
		Amount:           amount,
	}, nil
}

// Verify asks the gateway for the transaction status and, on success,
// activates premium for the paying user. A reference recorded by Initialize
// belongs to the user and plan stored with it; an unrecorded one is only
// honoured when the gateway metadata names the caller. Verifying an already
// settled payment does not extend premium again.
func (s *PaymentService) Verify(ctx context.Context, userID, reference string) (*PaymentResult, error) {
	if !s.Enabled() {
		return nil, ErrPaymentsUnavailable
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}

	row, err := s.load(ctx, reference)
	if err != nil {
		return nil, err
	}
	if row != nil && row.userID != userID {
		return nil, fmt.Errorf("payment %s: %w", reference, ErrNotFound)
	}

	var data verifyData
	if err := s.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return nil, fmt.Errorf("verify transaction %s: %w", reference, err)
	}

	meta := decodeMetadata(data.Metadata)
	plan := meta.PlanType
	switch {
	case row != nil:
		if meta.UserID != "" && meta.UserID != row.userID {
			return nil, fmt.Errorf("payment %s: %w", reference, ErrNotFound)
		}
		plan = row.plan
	case meta.UserID != userID:
		return nil, fmt.Errorf("payment %s: %w", reference, ErrNotFound)
	}
	if !plan.Valid() {
		plan = models.PlanMonthly
	}

	result := &PaymentResult{Reference: reference, Status: data.Status, Plan: plan}
	if data.Status != PaymentSuccess {
		_ = s.setStatus(ctx, reference, PaymentFailed)
		return result, fmt.Errorf("payment %s status %q: %w", reference, data.Status, ErrPaymentNotSuccessful)
	}

	if row != nil && row.status == PaymentSuccess {
		profile, err := s.profiles.Ensure(ctx, userID, "")
		if err != nil {
			return nil, err
		}
		result.Profile = profile
		return result, nil
	}

	profile, err := s.profiles.ActivatePremium(ctx, userID, plan, s.now())
	if err != nil {
		return nil, err
	}
	if row == nil {
		now := s.now()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO payments (reference, user_id, plan, amount, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?);
		`, reference, userID, plan, data.Amount/100, PaymentSuccess, now, now)
	} else {
		err = s.setStatus(ctx, reference, PaymentSuccess)
	}
	if err != nil {
		return nil, fmt.Errorf("record payment %s: %w", reference, err)
	}

	s.log.Info("premium activated", "reference", reference, "plan", plan, "user", userID)
	result.Profile = profile
	return result, nil
}

type paymentRow struct {
	userID string
	plan   models.PlanType
	status string
}

// load returns the recorded payment, or nil when the reference is unknown.
func (s *PaymentService) load(ctx context.Context, reference string) (*paymentRow, error) {
	var row paymentRow
	err := s.db.QueryRowContext(ctx, `SELECT user_id, plan, status FROM payments WHERE reference = ?;`, reference).
		Scan(&row.userID, &row.plan, &row.status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w", reference, err)
	}
	return &row, nil
}

func (s *PaymentService) status(ctx context.Context, reference string) (string, error) {
	row, err := s.load(ctx, reference)
	if err != nil || row == nil {
		return "", err
	}
	return row.status, nil
}

func (s *PaymentService) setStatus(ctx context.Context, reference, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE payments SET status = ?, updated_at = ? WHERE reference = ?;`, status, s.now(), reference)
	return err
}

func (s *PaymentService) call(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env gatewayEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("gateway error: status=%d, message=%s", resp.StatusCode, msg)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// decodeMetadata accepts metadata as an object or as a JSON-encoded string.
func decodeMetadata(raw json.RawMessage) paymentMetadata {
	var meta paymentMetadata
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return meta
	}
	switch raw[0] {
	case '{':
		_ = json.Unmarshal(raw, &meta)
	case '"':
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err == nil {
			_ = json.Unmarshal([]byte(encoded), &meta)
		}
	}
	return meta
}
