package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/testutil/mocks"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleNotification() domain.Notification {
	return domain.Notification{
		ID:             "4b8d8c3e-95a4-4a43-9d5e-7b1a0c8f9b11",
		UserID:         "user-7",
		Type:           domain.NotificationPaymentSuccess,
		Title:          "Payment Successful",
		Body:           "Your payment for order #order-1 was received.",
		RelatedOrderID: "order-1",
		CreatedAt:      time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Notify_KeysByUser(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)

	require.NoError(t, p.Notify(context.Background(), sampleNotification()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "user-7", string(msg.Key))
	assert.Equal(t, "payment_success", string(msg.Headers[0].Value))

	var decoded domain.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "order-1", decoded.RelatedOrderID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Notify_WrapsWriterError(t *testing.T) {
	p := NewKafkaPublisher(&fakeWriter{err: errors.New("leader not available")})

	err := p.Notify(context.Background(), sampleNotification())
	assert.ErrorContains(t, err, "leader not available")
}

func TestNewKafkaWriter_DefaultsTopic(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "")
	assert.Equal(t, DefaultTopic, w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

func TestSNSPublisher_Notify(t *testing.T) {
	client := &fakeSNS{}
	p := NewSNSPublisher(client, "arn:aws:sns:eu-west-1:123456789012:checkout-notifications")

	require.NoError(t, p.Notify(context.Background(), sampleNotification()))

	require.NotNil(t, client.input)
	assert.Equal(t, "arn:aws:sns:eu-west-1:123456789012:checkout-notifications", *client.input.TopicArn)
	assert.Contains(t, *client.input.Message, `"type":"payment_success"`)
	assert.Equal(t, "payment_success", *client.input.MessageAttributes["type"].StringValue)
}

func TestSNSPublisher_Notify_RequiresTopic(t *testing.T) {
	client := &fakeSNS{}
	err := NewSNSPublisher(client, "").Notify(context.Background(), sampleNotification())

	assert.Error(t, err)
	assert.Nil(t, client.input)
}

type notifierFunc func(ctx context.Context, n domain.Notification) error

func (f notifierFunc) Notify(ctx context.Context, n domain.Notification) error { return f(ctx, n) }

func TestFanout_DeliversToAllSinksAndJoinsErrors(t *testing.T) {
	var delivered []string
	ok := notifierFunc(func(_ context.Context, n domain.Notification) error {
		delivered = append(delivered, n.ID)
		return nil
	})
	failing := notifierFunc(func(context.Context, domain.Notification) error {
		return errors.New("broker down")
	})

	f := NewFanout(Sink{Name: "kafka", Notifier: failing}, Sink{Name: "store", Notifier: ok})
	err := f.Notify(context.Background(), sampleNotification())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: broker down")
	assert.Len(t, delivered, 1)
	assert.Equal(t, []string{"kafka", "store"}, f.Names())
}

func TestFanout_NoSinks(t *testing.T) {
	assert.NoError(t, NewFanout().Notify(context.Background(), sampleNotification()))
}

func TestStoreNotifier_InsertsIntoInbox(t *testing.T) {
	repo := new(mocks.MockNotificationRepository)
	n := sampleNotification()
	repo.On("Insert", mock.Anything, mock.Anything, n).Return(nil)

	require.NoError(t, NewStoreNotifier(&mocks.MockDBPort{}, repo).Notify(context.Background(), n))
	repo.AssertExpectations(t)
}

func TestSMTPMailer_Send(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "billing", Password: "pw", From: "billing@market.example"})
	m.now = func() time.Time { return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) }
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.NotNil(t, a)
		return nil
	}

	err := m.Send(context.Background(), domain.Email{
		To:      "merchant@example.com",
		Subject: "Settlement Payment Overdue - 3 days\r\nBcc: attacker@example.com",
		Body:    "line one\nline two",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"merchant@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Settlement Payment Overdue - 3 days  Bcc: attacker@example.com\r\n")
	assert.False(t, strings.Contains(gotMsg, "\r\nBcc:"))
	assert.True(t, strings.HasSuffix(gotMsg, "line one\r\nline two"))
}

func TestSMTPMailer_Send_NotConfigured(t *testing.T) {
	err := NewSMTPMailer(SMTPConfig{}).Send(context.Background(), domain.Email{To: "m@example.com"})
	assert.ErrorContains(t, err, "not configured")
}

func TestSMTPMailer_Send_RespectsContext(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 25, From: "billing@market.example"})
	block := make(chan struct{})
	defer close(block)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		<-block
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Send(ctx, domain.Email{To: "m@example.com", Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
