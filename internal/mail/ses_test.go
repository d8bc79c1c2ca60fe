package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	api := &fakeSES{}
	s := &SESSender{client: api, from: "noreply@example.com"}

	err := s.Send(context.Background(), Message{To: "ada@example.com", ToName: "Ada", Subject: "Hi", Text: "body"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if aws.ToString(api.in.FromEmailAddress) != "noreply@example.com" {
		t.Errorf("from = %q", aws.ToString(api.in.FromEmailAddress))
	}
	if got := api.in.Destination.ToAddresses; len(got) != 1 || got[0] != `"Ada" <ada@example.com>` {
		t.Errorf("to = %v", got)
	}
	simple := api.in.Content.Simple
	if aws.ToString(simple.Subject.Data) != "Hi" || aws.ToString(simple.Body.Text.Data) != "body" {
		t.Errorf("content = %+v", simple)
	}
}

func TestSESSender_Errors(t *testing.T) {
	s := &SESSender{client: &fakeSES{err: errors.New("throttled")}, from: "noreply@example.com"}
	if err := s.Send(context.Background(), Message{To: "ada@example.com", Subject: "Hi"}); err == nil {
		t.Error("expected SES error")
	}
	api := &fakeSES{}
	s = &SESSender{client: api}
	if err := s.Send(context.Background(), Message{Subject: "Hi"}); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("Send = %v, want ErrNoRecipient", err)
	}
	if api.in != nil {
		t.Error("invalid message must not reach SES")
	}
}

func TestNewSESSender_StaticCredentials(t *testing.T) {
	s, err := NewSESSender(context.Background(), SESConfig{
		Region:          "eu-west-1",
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
		From:            "noreply@example.com",
	})
	if err != nil {
		t.Fatalf("NewSESSender: %v", err)
	}
	if s.from != "noreply@example.com" || s.client == nil {
		t.Errorf("sender = %+v", s)
	}
}
