package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/Skufu/vitalwatch/internal/logger"
	"github.com/Skufu/vitalwatch/internal/metrics"
)

const defaultTemplate = "Emergency alert! {{name}} needs help!"

var ErrNoDestination = errors.New("alert: no emergency contact configured")

// Sender delivers one message to one destination.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Alert is the record of a dispatched emergency message.
type Alert struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// Dispatcher sends templated emergency alerts without waiting for delivery.
// Failed deliveries are logged and counted, never retried.
type Dispatcher struct {
	sender      Sender
	destination string
	patientName string
	template    string
	timeout     time.Duration
	log         *zap.Logger
	now         func() time.Time
	sent        chan error
}

type Option func(*Dispatcher)

func WithTemplate(tmpl string) Option {
	return func(d *Dispatcher) {
		if tmpl != "" {
			d.template = tmpl
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = logger.Module(log, "alert") }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDeliveryReports publishes the outcome of every delivery on ch. Sends
// to ch never block.
func WithDeliveryReports(ch chan error) Option {
	return func(d *Dispatcher) { d.sent = ch }
}

func NewDispatcher(sender Sender, destination, patientName string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:      sender,
		destination: destination,
		patientName: patientName,
		template:    defaultTemplate,
		timeout:     30 * time.Second,
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Message renders the alert template for the configured patient.
func (d *Dispatcher) Message() string {
	return strings.ReplaceAll(d.template, "{{name}}", d.patientName)
}

// Trigger queues an emergency alert and returns immediately.
func (d *Dispatcher) Trigger() (Alert, error) {
	if d.destination == "" {
		metrics.RecordAlert(ErrNoDestination)
		return Alert{}, ErrNoDestination
	}

	a := Alert{
		ID:          uuid.NewString(),
		Destination: d.destination,
		Message:     d.Message(),
		CreatedAt:   d.now(),
	}
	go d.deliver(a)
	return a, nil
}

func (d *Dispatcher) deliver(a Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.sender.Send(ctx, a.Destination, "Emergency alert", a.Message)
	metrics.RecordAlert(err)
	if err != nil {
		d.log.Error("emergency alert delivery failed", zap.String("alert_id", a.ID), zap.Error(err))
	} else {
		d.log.Info("emergency alert delivered", zap.String("alert_id", a.ID), zap.String("destination", a.Destination))
	}

	if d.sent != nil {
		select {
		case d.sent <- err:
		default:
		}
	}
}

// SMTPSender delivers alerts by email.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSender writes alerts to the log. Used when no SMTP host is configured.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: logger.Module(log, "alert")}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.log.Warn(subject, zap.String("to", to), zap.String("body", body))
	return nil
}
