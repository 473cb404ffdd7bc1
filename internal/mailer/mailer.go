package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/microcloud/backend/internal/config"
	"github.com/microcloud/backend/internal/store"
)

// Mailer sends transactional email over SMTP. All sends are fire-and-forget
// from the caller's perspective: a failed email never blocks order creation
// or a payment transition.
type Mailer struct {
	cfg   *config.Config
	store *store.Store
	log   *slog.Logger
}

// New creates a new Mailer
func New(cfg *config.Config, st *store.Store, log *slog.Logger) *Mailer {
	return &Mailer{
		cfg:   cfg,
		store: st,
		log:   log,
	}
}

func (m *Mailer) send(ctx context.Context, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.MailFrom); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	client, err := mail.NewClient(m.cfg.SMTPHost,
		mail.WithPort(m.cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.SMTPUser),
		mail.WithPassword(m.cfg.SMTPPass),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	return nil
}

// SendOrderCreated sends the order confirmation with the payment link. The
// payment window wording matches the order cancellation policy.
func (m *Mailer) SendOrderCreated(ctx context.Context, to, firstName string, customerID int64, amountUSD float64) error {
	paymentURL := fmt.Sprintf("%s/payment?customerId=%d&planAmount=%g",
		m.cfg.BaseURL, customerID, amountUSD)

	body := fmt.Sprintf(`
      <h1>Order Confirmation</h1>
      <p>Hi %s,</p>
      <p>Thank you for your order! To complete the purchase, please pay within the next 30 minutes.</p>
      <p><strong>Order Amount: $%.2f</strong></p>
      <p>Click <a href="%s">here to proceed to payment</a>.</p>
      <p><em>Your order will be cancelled if payment is not received within 30 minutes.</em></p>
      <p>Thank you for choosing us!</p>
    `, firstName, amountUSD, paymentURL)

	if err := m.send(ctx, to, "Your Order Confirmation", body); err != nil {
		m.log.Error("send order email", "customer_id", customerID, "error", err)
		return err
	}

	m.log.Info("order email sent", "customer_id", customerID, "to", to)
	return nil
}

// SendPaymentConfirmed looks up the customer's paid order details and sends
// the payment confirmation
func (m *Mailer) SendPaymentConfirmed(ctx context.Context, customerID int64) error {
	info, err := m.store.PaidOrderInfo(customerID)
	if err != nil {
		m.log.Error("load paid order info", "customer_id", customerID, "error", err)
		return err
	}

	body := fmt.Sprintf(`
        <h1>Payment Confirmation</h1>
        <p>Hi %s,</p>
        <p>We are pleased to confirm that your payment has been successfully received.</p>
        <p><strong>Details:</strong></p>
        <ul>
          <li><strong>Region:</strong> %s</li>
          <li><strong>Plan:</strong> %s</li>
          <li><strong>Amount Paid:</strong> $%.2f</li>
          <li><strong>Purchase Date:</strong> %s</li>
        </ul>
        <p>Your order will be delivered within the next 24 hours. If you have any questions, please contact us.</p>
      `, info.FirstName, info.RegionName, info.PlanName, info.AmountUSD,
		info.PurchaseDate.Format("1/2/2006"))

	if err := m.send(ctx, info.Email, "Payment Confirmation", body); err != nil {
		m.log.Error("send payment email", "customer_id", customerID, "error", err)
		return err
	}

	m.log.Info("payment email sent", "customer_id", customerID, "to", info.Email)
	return nil
}

// SendPasswordReset emails a one-time password reset code
func (m *Mailer) SendPasswordReset(ctx context.Context, to, otp string) error {
	body := fmt.Sprintf(`
      <h1>Password Reset</h1>
      <p>Your password reset code is:</p>
      <p><strong>%s</strong></p>
      <p>The code expires in 10 minutes. If you did not request a reset, you can ignore this email.</p>
    `, otp)

	if err := m.send(ctx, to, "Your Password Reset Code", body); err != nil {
		m.log.Error("send password reset email", "to", to, "error", err)
		return err
	}

	m.log.Info("password reset email sent", "to", to)
	return nil
}
